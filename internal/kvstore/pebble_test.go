package kvstore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPebbleBackendPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.pebble")

	b, err := OpenPebbleBackend(path, false)
	if err != nil {
		t.Fatal(err)
	}
	s := New("caseace", b)
	if err := s.SetItem("cache:a", map[string]int{"n": 1}, SetOptions{}); err != nil {
		t.Fatal(err)
	}
	_ = s.SetItem("cache:b", 2, SetOptions{})
	_ = b.Put("zzz", []byte("outside"), time.Time{})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = OpenPebbleBackend(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	s = New("caseace", b)

	var got map[string]int
	if ok, err := s.GetItem("cache:a", &got); !ok || err != nil || got["n"] != 1 {
		t.Fatalf("GetItem = %v %v %v", got, ok, err)
	}

	keys, err := s.GetAllKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("keys = %v", keys)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"abc", []byte("abd")},
		{"a\xff", []byte("b")},
		{"\xff\xff", nil},
	}
	for _, tt := range tests {
		got := prefixUpperBound([]byte(tt.in))
		if string(got) != string(tt.want) || (got == nil) != (tt.want == nil) {
			t.Errorf("prefixUpperBound(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
