package config

import (
	"strings"
	"testing"
)

func TestValidateInventory(t *testing.T) {
	tests := []struct {
		name       string
		inv        *Inventory
		wantErrors bool
	}{
		{
			name: "valid inventory",
			inv: &Inventory{
				Defaults: Defaults{User: "deploy", Port: 22},
				Hosts: map[string]HostConfig{
					"web1": {Host: "10.0.0.1"},
					"web2": {Host: "web2.example.com", Port: 2222, User: "admin"},
				},
				Groups: map[string][]string{"web": {"web1", "web2"}},
			},
			wantErrors: false,
		},
		{
			name:       "empty inventory is valid",
			inv:        DefaultInventory(),
			wantErrors: false,
		},
		{
			name: "missing host address",
			inv: &Inventory{
				Hosts: map[string]HostConfig{"web1": {}},
			},
			wantErrors: true,
		},
		{
			name: "injection in host address",
			inv: &Inventory{
				Hosts: map[string]HostConfig{"web1": {Host: "example.com; rm -rf /"}},
			},
			wantErrors: true,
		},
		{
			name: "invalid user",
			inv: &Inventory{
				Hosts: map[string]HostConfig{"web1": {Host: "example.com", User: "Root"}},
			},
			wantErrors: true,
		},
		{
			name: "port too high",
			inv: &Inventory{
				Hosts: map[string]HostConfig{"web1": {Host: "example.com", Port: 70000}},
			},
			wantErrors: true,
		},
		{
			name: "invalid default port",
			inv: &Inventory{
				Defaults: Defaults{Port: -1},
			},
			wantErrors: true,
		},
		{
			name: "negative batch size",
			inv: &Inventory{
				Defaults: Defaults{BatchSize: -5},
			},
			wantErrors: true,
		},
		{
			name: "negative timeout",
			inv: &Inventory{
				Defaults: Defaults{Timeout: -1},
			},
			wantErrors: true,
		},
		{
			name: "group with unknown host",
			inv: &Inventory{
				Hosts:  map[string]HostConfig{"web1": {Host: "10.0.0.1"}},
				Groups: map[string][]string{"web": {"web1", "web9"}},
			},
			wantErrors: true,
		},
		{
			name: "group named like a host",
			inv: &Inventory{
				Hosts:  map[string]HostConfig{"web1": {Host: "10.0.0.1"}},
				Groups: map[string][]string{"web1": {"web1"}},
			},
			wantErrors: true,
		},
		{
			name: "reserved host name",
			inv: &Inventory{
				Hosts: map[string]HostConfig{"all": {Host: "10.0.0.1"}},
			},
			wantErrors: true,
		},
		{
			name: "IPv6 host",
			inv: &Inventory{
				Hosts: map[string]HostConfig{"v6": {Host: "::1"}},
			},
			wantErrors: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := ValidateInventory(tt.inv)
			if tt.wantErrors && !errors.HasErrors() {
				t.Error("expected validation errors but got none")
			}
			if !tt.wantErrors && errors.HasErrors() {
				t.Errorf("unexpected validation errors: %s", errors.Error())
			}
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	inv := &Inventory{
		Hosts: map[string]HostConfig{
			"b": {Host: ""},
			"a": {Host: "ok.example.com", Port: 0, User: "9x"},
		},
	}

	errs := ValidateInventory(inv)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %s", len(errs), errs.Error())
	}
	if errs[0].Field != "hosts.a.user" {
		t.Errorf("expected first error on hosts.a.user, got %s", errs[0].Field)
	}
	if !strings.Contains(errs.Error(), "hosts.b.host: host cannot be empty") {
		t.Errorf("unexpected message: %s", errs.Error())
	}
}
