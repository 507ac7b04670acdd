package config

import (
	"testing"
	"time"
)

func TestDefaultInventory(t *testing.T) {
	inv := DefaultInventory()

	if inv.Hosts == nil {
		t.Error("expected hosts map to be initialized")
	}

	if inv.Defaults.Port != 22 {
		t.Errorf("expected default port 22, got %d", inv.Defaults.Port)
	}

	if inv.Defaults.User != "root" {
		t.Errorf("expected default user 'root', got %s", inv.Defaults.User)
	}

	if inv.Defaults.BatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", inv.Defaults.BatchSize)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("expected 90s, got %s", d)
	}

	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for invalid duration")
	}

	text, _ := Duration(5 * time.Second).MarshalText()
	if string(text) != "5s" {
		t.Errorf("expected 5s, got %s", text)
	}
}
