package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"

	"github.com/onnwee/caseace-cache/internal/kvstore"
)

var timeNow = time.Now

// inspector is the part of kvstore.Storage the tool works against.
type inspector interface {
	kvstore.Store
	Inspect(key string) (kvstore.ItemInfo, bool, error)
	RemovePrefix(prefix string) (int, error)
}

func runKeys(w io.Writer, s inspector, prefix string) error {
	keys, err := s.GetAllKeys()
	if err != nil {
		return err
	}
	n := 0
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			fmt.Fprintln(w, k)
			n++
		}
	}
	fmt.Fprintf(w, "%d keys\n", n)
	return nil
}

func runGet(w io.Writer, s inspector, key string) error {
	info, ok, err := s.Inspect(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %q not found", key)
	}
	var value json.RawMessage
	if ok, err = s.GetItem(key, &value); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %q expired", key)
	}
	out := struct {
		kvstore.ItemInfo
		Value json.RawMessage `json:"value"`
	}{info, value}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func runRemove(w io.Writer, s inspector, keys []string) error {
	for _, k := range keys {
		if err := s.RemoveItem(k); err != nil {
			return err
		}
		fmt.Fprintf(w, "removed %s\n", k)
	}
	return nil
}

// runPurge reads every item once; reads drop expired and unreadable items.
// purgeRows, when set, also deletes expired rows server-side.
func runPurge(ctx context.Context, w io.Writer, s inspector, purgeRows func(context.Context) (int64, error), dryRun bool) error {
	keys, err := s.GetAllKeys()
	if err != nil {
		return err
	}
	stale := 0
	for _, k := range keys {
		if dryRun {
			info, ok, err := s.Inspect(k)
			if err != nil {
				return err
			}
			if !ok || (!info.ExpiresAt.IsZero() && info.ExpiresAt.Before(timeNow())) {
				stale++
			}
			continue
		}
		ok, err := s.GetItem(k, nil)
		if err != nil {
			return err
		}
		if !ok {
			stale++
		}
	}

	if dryRun {
		fmt.Fprintf(w, "Dry-run: %d of %d items would be removed\n", stale, len(keys))
		return nil
	}
	fmt.Fprintf(w, "Removed %d of %d items\n", stale, len(keys))
	if purgeRows != nil {
		n, err := purgeRows(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Purged %d expired rows\n", n)
	}
	return nil
}

func runStats(w io.Writer, s inspector) error {
	keys, err := s.GetAllKeys()
	if err != nil {
		return err
	}
	type bucket struct {
		items, encoded, expiring, bytes int
	}
	byBackend := make(map[string]*bucket)
	byNamespace := make(map[string]int)
	for _, k := range keys {
		info, ok, err := s.Inspect(k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b := byBackend[info.Backend]
		if b == nil {
			b = &bucket{}
			byBackend[info.Backend] = b
		}
		b.items++
		b.bytes += info.Bytes
		if info.Encoded {
			b.encoded++
		}
		if !info.ExpiresAt.IsZero() {
			b.expiring++
		}
		ns, _, _ := strings.Cut(k, ":")
		byNamespace[ns]++
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tITEMS\tENCODED\tEXPIRING\tBYTES")
	for _, name := range sortedKeys(byBackend) {
		b := byBackend[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", name, b.items, b.encoded, b.expiring, b.bytes)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "NAMESPACE\tITEMS")
	for _, ns := range sortedKeys(byNamespace) {
		fmt.Fprintf(tw, "%s\t%d\n", ns, byNamespace[ns])
	}
	return tw.Flush()
}

func runClear(w io.Writer, s inspector, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	n, err := s.RemovePrefix(namespace + ":")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Removed %d items from namespace %s\n", n, namespace)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
