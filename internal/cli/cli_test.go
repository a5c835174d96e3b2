package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()

	want := map[string][]string{
		"serve":   nil,
		"sandbox": nil,
		"migrate": {"up", "down", "version", "force"},
	}
	for name, subs := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %q command, got %v (%v)", name, cmd, err)
		}
		for _, sub := range subs {
			if c, _, err := cmd.Find([]string{sub}); err != nil || c.Name() != sub {
				t.Fatalf("expected %s %s, got %v (%v)", name, sub, c, err)
			}
		}
	}
}

func TestMigrateForceRequiresVersion(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "force"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "accepts 1 arg") {
		t.Fatalf("expected argument validation error, got %v", err)
	}
}

func TestConfigFlagSetsOverlay(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	root := NewRootCmd()
	root.SetArgs([]string{"--config", "does-not-exist.yaml", "migrate", "force", "1"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Fatalf("expected the overlay to be read and fail, got %v", err)
	}

	if got := os.Getenv("CONFIG_FILE"); got != "does-not-exist.yaml" {
		t.Fatalf("expected CONFIG_FILE from --config, got %q", got)
	}
}
