package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHomeDir_Default(t *testing.T) {
	t.Setenv(EnvHome, "")

	got, err := HomeDir()
	if err != nil {
		t.Fatalf("HomeDir() failed: %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".setup-tool"); got != want {
		t.Errorf("HomeDir() = %q, want %q", got, want)
	}
}

func TestHomeDir_Override(t *testing.T) {
	t.Setenv(EnvHome, "/custom/setup-tool")

	got, err := HomeDir()
	if err != nil {
		t.Fatalf("HomeDir() failed: %v", err)
	}
	if got != "/custom/setup-tool" {
		t.Errorf("HomeDir() = %q, want /custom/setup-tool", got)
	}
}

func TestCacheRootFor(t *testing.T) {
	home := filepath.Join("home", ".setup-tool")

	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv(EnvRunnerToolCache, "/opt/hostedtoolcache")
		if got := CacheRootFor("/tmp/cache", home); got != "/tmp/cache" {
			t.Errorf("CacheRootFor() = %q, want /tmp/cache", got)
		}
	})

	t.Run("runner tool cache", func(t *testing.T) {
		t.Setenv(EnvRunnerToolCache, "/opt/hostedtoolcache")
		if got := CacheRootFor("", home); got != "/opt/hostedtoolcache" {
			t.Errorf("CacheRootFor() = %q, want /opt/hostedtoolcache", got)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv(EnvRunnerToolCache, "")
		want := filepath.Join(home, "tool-cache")
		if got := CacheRootFor("", home); got != want {
			t.Errorf("CacheRootFor() = %q, want %q", got, want)
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(EnvHome, "/custom/setup-tool")
	t.Setenv(EnvRunnerToolCache, "")

	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig() failed: %v", err)
	}
	if cfg.HomeDir != "/custom/setup-tool" {
		t.Errorf("HomeDir = %q", cfg.HomeDir)
	}
	if want := filepath.Join("/custom/setup-tool", "tool-cache"); cfg.CacheRoot != want {
		t.Errorf("CacheRoot = %q, want %q", cfg.CacheRoot, want)
	}
	wd, _ := os.Getwd()
	if cfg.WorkDir != wd {
		t.Errorf("WorkDir = %q, want %q", cfg.WorkDir, wd)
	}
}

func TestGetAPITimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", DefaultAPITimeout},
		{"45s", 45 * time.Second},
		{"invalid", DefaultAPITimeout},
		{"100ms", 1 * time.Second},
		{"1h", 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvAPITimeout, tt.value)
			if got := GetAPITimeout(); got != tt.want {
				t.Errorf("GetAPITimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetMaxAttempts(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", DefaultMaxAttempts},
		{"5", 5},
		{"abc", DefaultMaxAttempts},
		{"0", 1},
		{"-2", 1},
		{"50", 10},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvMaxAttempts, tt.value)
			if got := GetMaxAttempts(); got != tt.want {
				t.Errorf("GetMaxAttempts() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetDownloadTimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", DefaultDownloadTimeout},
		{"2m", 2 * time.Minute},
		{"soon", DefaultDownloadTimeout},
		{"1s", 10 * time.Second},
		{"3h", time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvDownloadTimeout, tt.value)
			if got := GetDownloadTimeout(); got != tt.want {
				t.Errorf("GetDownloadTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}
