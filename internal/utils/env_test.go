package utils

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"no", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.val)
			if got := GetEnvAsBool("TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("GetEnvAsBool(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
			}
		})
	}
}

func TestGetEnvAsNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := GetEnvAsInt("TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvAsInt = %d, want 42", got)
	}
	t.Setenv("TEST_INT", "nope")
	if got := GetEnvAsInt("TEST_INT", 1); got != 1 {
		t.Errorf("GetEnvAsInt with bad value = %d, want default 1", got)
	}
	t.Setenv("TEST_INT64", "52428800")
	if got := GetEnvAsInt64("TEST_INT64", 0); got != 52428800 {
		t.Errorf("GetEnvAsInt64 = %d", got)
	}
	t.Setenv("TEST_FLOAT", "1.5")
	if got := GetEnvAsFloat("TEST_FLOAT", 0); got != 1.5 {
		t.Errorf("GetEnvAsFloat = %v", got)
	}
}

func TestGetEnvAsMillis(t *testing.T) {
	t.Setenv("TEST_MS", "")
	if got := GetEnvAsMillis("TEST_MS", time.Minute); got != time.Minute {
		t.Errorf("default = %v, want 1m", got)
	}
	t.Setenv("TEST_MS", "1500")
	if got := GetEnvAsMillis("TEST_MS", time.Minute); got != 1500*time.Millisecond {
		t.Errorf("got %v, want 1.5s", got)
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, b ,,c ")
	got := GetEnvAsSlice("TEST_SLICE", nil, ",")
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("GetEnvAsSlice = %v, want %v", got, want)
	}
	t.Setenv("TEST_SLICE", "")
	if got := GetEnvAsSlice("TEST_SLICE", []string{"x"}, ","); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("default not returned: %v", got)
	}
}

func TestGetEnvAsString(t *testing.T) {
	t.Setenv("TEST_STR", "  ")
	if got := GetEnvAsString("TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("blank value should use default, got %q", got)
	}
	t.Setenv("TEST_STR", " value ")
	if got := GetEnvAsString("TEST_STR", "fallback"); got != "value" {
		t.Errorf("got %q, want trimmed value", got)
	}
}
