package kvstore

import (
	"testing"
	"time"
)

func TestMemoryBackend(t *testing.T) {
	b, err := NewMemoryBackend(1)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Put("ns:a", []byte("1"), time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err := b.Put("ns:b", []byte("2"), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	_ = b.Put("other", []byte("3"), time.Time{})

	v, ok, err := b.Get("ns:a")
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}

	keys, _ := b.Keys("ns:")
	if len(keys) != 2 || keys[0] != "ns:a" || keys[1] != "ns:b" {
		t.Errorf("Keys = %v", keys)
	}

	_ = b.Delete("ns:a")
	if _, ok, _ := b.Get("ns:a"); ok {
		t.Error("deleted key should be absent")
	}

	if err := b.Put("past", []byte("x"), time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get("past"); ok {
		t.Error("already-expired put should not be stored")
	}
	if err := b.Put("", nil, time.Time{}); err != ErrEmptyKey {
		t.Errorf("empty key = %v", err)
	}
}
