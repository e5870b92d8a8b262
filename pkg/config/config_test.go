package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name     string        `yaml:"name"`
	Debounce time.Duration `yaml:"debounce"`
	Watch    bool          `yaml:"watch"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestLoadBytes_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("ARBOR_TEST_NAME", "vault")
	cfg := sample{Watch: true}
	if err := LoadBytes([]byte("name: ${ARBOR_TEST_NAME}\ndebounce: 250ms\n"), &cfg); err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if cfg.Name != "vault" {
		t.Errorf("name = %q, want vault", cfg.Name)
	}
	if cfg.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Debounce)
	}
	if !cfg.Watch {
		t.Error("absent key should keep its default")
	}
}

func TestLoadBytes_Validates(t *testing.T) {
	var cfg sample
	err := LoadBytes([]byte("debounce: 1s\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestLoadWithDefaults_FallsBack(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "default.yaml")
	if err := os.WriteFile(def, []byte("name: fallback\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var cfg sample
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), def, &cfg); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Name != "fallback" {
		t.Errorf("name = %q, want fallback", cfg.Name)
	}
}
