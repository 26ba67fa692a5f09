package secrets

import (
	"strings"
	"testing"
)

func TestMask(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"unset admin token", "", ""},
		{"short obfuscation key", "k3y", "***"},
		{"eight characters", "12345678", "***"},
		{"admin token", "adm-7f3c9b2e41d0", "adm-..."},
		{"hex sealing key", strings.Repeat("ab", 32), "abab..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mask(tt.secret); got != tt.expected {
				t.Errorf("Mask(%q) = %q, want %q", tt.secret, got, tt.expected)
			}
		})
	}
}

func TestMaskURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"unset", "", ""},
		{
			"database url with sslmode",
			"postgres://cache:hunter2@db:5432/cache?sslmode=disable",
			"postgres://cache:***@db:5432/cache?sslmode=disable",
		},
		{
			"password containing at sign",
			"postgresql://cache:p@ss@db/cache",
			"postgresql://cache:***@db/cache",
		},
		{"user without password", "postgres://cache@db/cache", "postgres://cache@db/cache"},
		{
			"unix socket",
			"postgres:///cache?host=/var/run/postgresql",
			"postgres:///cache?host=/var/run/postgresql",
		},
		{"pebble path", "./data/cache.pebble", "./data/cache.pebble"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskURL(tt.url); got != tt.expected {
				t.Errorf("MaskURL(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}
