package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const yamlInventory = `defaults:
  user: deploy
  key_path: ~/.ssh/fleet
  timeout: 45s
hosts:
  web1:
    host: 10.0.0.1
  web2:
    host: 10.0.0.2
    port: 2222
    user: admin
  db1:
    host: db.internal
    proxy: bastion:1080
groups:
  web: [web1, web2]
`

const tomlInventory = `[defaults]
user = "deploy"
batch_size = 10
timeout = "2m"

[hosts.web1]
host = "10.0.0.1"

[hosts.db1]
host = "db.internal"
port = 2200

[groups]
db = ["db1"]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadInventoryYAML(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "inventory.yaml", yamlInventory))
	if err != nil {
		t.Fatalf("LoadInventory() error = %v", err)
	}

	if inv.Defaults.Port != 22 {
		t.Errorf("expected default port 22, got %d", inv.Defaults.Port)
	}
	if inv.Defaults.BatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", inv.Defaults.BatchSize)
	}
	if inv.Defaults.Timeout.Std() != 45*time.Second {
		t.Errorf("expected timeout 45s, got %s", inv.Defaults.Timeout)
	}
	if got := inv.ListHosts(); !reflect.DeepEqual(got, []string{"db1", "web1", "web2"}) {
		t.Errorf("unexpected hosts: %v", got)
	}
}

func TestLoadInventoryTOML(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "inventory.toml", tomlInventory))
	if err != nil {
		t.Fatalf("LoadInventory() error = %v", err)
	}

	if inv.Defaults.BatchSize != 10 {
		t.Errorf("expected batch size 10, got %d", inv.Defaults.BatchSize)
	}
	if inv.Defaults.Timeout.Std() != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %s", inv.Defaults.Timeout)
	}
	db, err := inv.GetHost("db1")
	if err != nil {
		t.Fatal(err)
	}
	if db.Port != 2200 {
		t.Errorf("expected port 2200, got %d", db.Port)
	}
}

func TestLoadInventoryErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadInventory(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil || !strings.Contains(err.Error(), "inventory file not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadInventory(writeFile(t, "bad.yaml", "hosts: [unclosed"))
		if err == nil || !strings.Contains(err.Error(), "failed to parse inventory") {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("invalid timeout", func(t *testing.T) {
		_, err := LoadInventory(writeFile(t, "bad.toml", "[defaults]\ntimeout = \"soon\"\n"))
		if err == nil {
			t.Error("expected error for invalid timeout")
		}
	})

	t.Run("validation", func(t *testing.T) {
		_, err := LoadInventory(writeFile(t, "bad.yaml", "hosts:\n  web1:\n    host: \"a;b\"\n"))
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("expected ValidationErrors, got %v", err)
		}
		if verrs[0].Field != "hosts.web1.host" {
			t.Errorf("unexpected field %s", verrs[0].Field)
		}
	})
}

func TestLoadInventoryDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := GetInventoryPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "sshfleet", "inventory.yaml"); path != want {
		t.Errorf("expected %s, got %s", want, path)
	}

	inv, err := LoadInventory("")
	if err != nil {
		t.Fatalf("LoadInventory() error = %v", err)
	}
	if len(inv.Hosts) != 0 {
		t.Errorf("expected empty inventory, got %v", inv.Hosts)
	}

	if err := inv.AddHost("web1", HostConfig{Host: "10.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	if err := SaveInventory(inv, ""); err != nil {
		t.Fatalf("SaveInventory() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
	}

	reloaded, err := LoadInventory("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reloaded.GetHost("web1"); err != nil {
		t.Error(err)
	}
}

func TestSaveInventoryTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.toml")
	inv := DefaultInventory()
	inv.Defaults.Timeout = Duration(90 * time.Second)
	_ = inv.AddHost("db1", HostConfig{Host: "db.internal", Port: 2200})

	if err := SaveInventory(inv, path); err != nil {
		t.Fatalf("SaveInventory() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `timeout = "1m30s"`) {
		t.Errorf("expected duration string in output:\n%s", data)
	}

	reloaded, err := LoadInventory(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Defaults.Timeout != inv.Defaults.Timeout {
		t.Errorf("expected timeout %s, got %s", inv.Defaults.Timeout, reloaded.Defaults.Timeout)
	}
}

func TestSelect(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "inventory.yaml", yamlInventory))
	if err != nil {
		t.Fatal(err)
	}

	names := func(targets []Target) []string {
		var out []string
		for _, tg := range targets {
			out = append(out, tg.Name)
		}
		return out
	}

	tests := []struct {
		name      string
		selectors []string
		want      []string
		wantErr   bool
	}{
		{"no selector", nil, []string{"db1", "web1", "web2"}, false},
		{"all", []string{"all"}, []string{"db1", "web1", "web2"}, false},
		{"group", []string{"web"}, []string{"web1", "web2"}, false},
		{"host and overlapping group", []string{"web2", "web"}, []string{"web1", "web2"}, false},
		{"unknown", []string{"mail"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := inv.Select(tt.selectors...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := names(targets); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	targets, _ := inv.Select("web2", "db1")
	db, web2 := targets[0], targets[1]
	if db.User != "deploy" || db.Port != 22 || db.Proxy != "bastion:1080" || db.KeyPath != "~/.ssh/fleet" {
		t.Errorf("defaults not applied to db1: %+v", db)
	}
	if web2.User != "admin" || web2.Port != 2222 {
		t.Errorf("overrides lost on web2: %+v", web2)
	}
}

func TestAddRemoveHost(t *testing.T) {
	inv := DefaultInventory()
	_ = inv.AddHost("web1", HostConfig{Host: "10.0.0.1"})
	_ = inv.AddHost("web2", HostConfig{Host: "10.0.0.2"})
	inv.Groups["web"] = []string{"web1", "web2"}

	if err := inv.AddHost("web1", HostConfig{Host: "10.0.0.9"}); err == nil {
		t.Error("expected error adding duplicate host")
	}
	if err := inv.AddHost("web", HostConfig{Host: "10.0.0.9"}); err == nil {
		t.Error("expected error adding host named like a group")
	}

	if err := inv.RemoveHost("web1"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(inv.Groups["web"], []string{"web2"}) {
		t.Errorf("expected web1 removed from group, got %v", inv.Groups["web"])
	}
	if err := inv.RemoveHost("web1"); err == nil {
		t.Error("expected error removing unknown host")
	}
}
