package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/caseace-cache/internal/kvstore"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*kvstore.Storage, *kvstore.MockBackend, *clock) {
	t.Helper()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	backend := kvstore.NewMockBackend("local")
	s := kvstore.New("caseace", backend, kvstore.WithClock(c.now))

	if err := s.SetItem("cache:a", map[string]int{"n": 1}, kvstore.SetOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetItem("cache:b", "short", kvstore.SetOptions{ExpiresIn: time.Minute}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetItem("other:c", true, kvstore.SetOptions{}); err != nil {
		t.Fatal(err)
	}
	return s, backend, c
}

func TestRunKeys(t *testing.T) {
	s, _, _ := newTestStore(t)
	var buf bytes.Buffer
	if err := runKeys(&buf, s, "cache:"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "cache:a\ncache:b\n") || strings.Contains(out, "other:c") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "2 keys") {
		t.Errorf("missing count:\n%s", out)
	}
}

func TestRunGet(t *testing.T) {
	s, _, _ := newTestStore(t)
	var buf bytes.Buffer
	if err := runGet(&buf, s, "cache:a"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"n"`) || !strings.Contains(buf.String(), `"backend": "local"`) {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if err := runGet(&buf, s, "missing"); err == nil {
		t.Error("expected error for a missing key")
	}
}

func TestRunPurge(t *testing.T) {
	s, backend, c := newTestStore(t)
	c.t = c.t.Add(2 * time.Minute)
	timeNow = c.now
	defer func() { timeNow = time.Now }()

	var buf bytes.Buffer
	if err := runPurge(context.Background(), &buf, s, nil, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "1 of 3 items would be removed") {
		t.Errorf("unexpected dry-run output: %s", buf.String())
	}
	if backend.Len() != 3 {
		t.Fatalf("dry-run should not delete, have %d items", backend.Len())
	}

	buf.Reset()
	purged := false
	purgeRows := func(context.Context) (int64, error) {
		purged = true
		return 0, nil
	}
	if err := runPurge(context.Background(), &buf, s, purgeRows, false); err != nil {
		t.Fatal(err)
	}
	if backend.Len() != 2 || !purged {
		t.Errorf("expected 2 items left and rows purged, got %d, %v", backend.Len(), purged)
	}
}

func TestRunStats(t *testing.T) {
	s, _, _ := newTestStore(t)
	var buf bytes.Buffer
	if err := runStats(&buf, s); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"BACKEND", "local", "NAMESPACE", "cache", "other"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestRunClear(t *testing.T) {
	s, backend, _ := newTestStore(t)
	var buf bytes.Buffer
	if err := runClear(&buf, s, "cache"); err != nil {
		t.Fatal(err)
	}
	if backend.Len() != 1 {
		t.Errorf("only other:c should remain, have %d", backend.Len())
	}
	if err := runClear(&buf, s, ""); err == nil {
		t.Error("expected error without a namespace")
	}
}

func TestRunRemove(t *testing.T) {
	s, backend, _ := newTestStore(t)
	var buf bytes.Buffer
	if err := runRemove(&buf, s, []string{"cache:a", "other:c"}); err != nil {
		t.Fatal(err)
	}
	if backend.Len() != 1 {
		t.Errorf("expected 1 item left, got %d", backend.Len())
	}
}
