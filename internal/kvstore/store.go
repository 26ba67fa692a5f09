package kvstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/onnwee/caseace-cache/internal/logger"
	"github.com/onnwee/caseace-cache/internal/metrics"
)

// Store is the namespaced key/value contract the cache manager mirrors into.
// Every method is fallible; callers decide whether a failure matters.
type Store interface {
	// SetItem persists value under key.
	SetItem(key string, value any, opts SetOptions) error
	// GetItem decodes the value stored under key into dst. It returns false
	// when the key is absent, expired or corrupt; corrupt entries are removed.
	// An error is only returned when the backend itself fails.
	GetItem(key string, dst any) (bool, error)
	RemoveItem(key string) error
	GetAllKeys() ([]string, error)
	// Clear removes every key in the store's namespace.
	Clear() error
}

// SetOptions control how a single item is written.
type SetOptions struct {
	// ExpiresIn is relative to the write. Zero means the item never expires.
	ExpiresIn time.Duration
	// UseSessionStorage writes to the session backend instead of the durable one.
	UseSessionStorage bool
	// SkipEncryption writes the payload without passing it through the codec.
	SkipEncryption bool
}

const (
	headerPlain   byte = 'p'
	headerEncoded byte = 'e'
)

// envelope is the persisted form of every item.
type envelope struct {
	Value     json.RawMessage `json:"v"`
	CreatedAt int64           `json:"c"`
	ExpiresAt int64           `json:"e,omitempty"`
}

// ItemInfo describes a persisted item without decoding its value.
type ItemInfo struct {
	Key       string    `json:"key"`
	Backend   string    `json:"backend"`
	Encoded   bool      `json:"encoded"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Storage implements Store on top of a durable backend and an optional
// session backend. All keys are stored as "<namespace>:<key>".
type Storage struct {
	namespace string
	local     Backend
	session   Backend
	codec     Codec
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Storage.
type Option func(*Storage)

// WithSessionBackend sets the backend used for SetOptions.UseSessionStorage.
// Without one, session writes go to the durable backend.
func WithSessionBackend(b Backend) Option {
	return func(s *Storage) { s.session = b }
}

// WithCodec sets the payload codec. Defaults to Passthrough.
func WithCodec(c Codec) Option {
	return func(s *Storage) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report dropped entries.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Storage rooted at namespace over the durable backend local.
func New(namespace string, local Backend, opts ...Option) *Storage {
	s := &Storage{
		namespace: namespace,
		local:     local,
		codec:     Passthrough{},
		now:       time.Now,
		log:       logger.WithComponent("kvstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.session == nil {
		s.session = s.local
	}
	return s
}

// Namespace returns the key prefix without the trailing separator.
func (s *Storage) Namespace() string { return s.namespace }

// Codec returns the configured codec.
func (s *Storage) Codec() Codec { return s.codec }

func (s *Storage) fullKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

func (s *Storage) stripKey(full string) string {
	if s.namespace == "" {
		return full
	}
	return strings.TrimPrefix(full, s.namespace+":")
}

func (s *Storage) backends() []Backend {
	if s.session == s.local {
		return []Backend{s.local}
	}
	return []Backend{s.session, s.local}
}

// SetItem implements Store.
func (s *Storage) SetItem(key string, value any, opts SetOptions) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}

	now := s.now()
	env := envelope{Value: raw, CreatedAt: now.UnixMilli()}
	var expiresAt time.Time
	if opts.ExpiresIn > 0 {
		expiresAt = now.Add(opts.ExpiresIn)
		env.ExpiresAt = expiresAt.UnixMilli()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kvstore: encode envelope %q: %w", key, err)
	}

	header := headerPlain
	if !opts.SkipEncryption {
		if payload, err = s.codec.Encode(payload); err != nil {
			return fmt.Errorf("kvstore: %s encode %q: %w", s.codec.Name(), key, err)
		}
		header = headerEncoded
	}

	full := s.fullKey(key)
	target, other := s.local, s.session
	if opts.UseSessionStorage {
		target, other = s.session, s.local
	}
	// A key lives in exactly one backend.
	if other != target {
		if err := other.Delete(full); err != nil {
			return fmt.Errorf("kvstore: move %q: %w", key, err)
		}
	}
	data := make([]byte, 0, len(payload)+1)
	data = append(data, header)
	data = append(data, payload...)
	if err := target.Put(full, data, expiresAt); err != nil {
		return fmt.Errorf("kvstore: %s put %q: %w", target.Name(), key, err)
	}
	return nil
}

// GetItem implements Store. The session backend is consulted first.
func (s *Storage) GetItem(key string, dst any) (bool, error) {
	if key == "" {
		return false, nil
	}
	full := s.fullKey(key)
	for _, b := range s.backends() {
		data, ok, err := b.Get(full)
		if err != nil {
			return false, fmt.Errorf("kvstore: %s get %q: %w", b.Name(), key, err)
		}
		if !ok {
			continue
		}

		env, err := s.decode(data)
		if err != nil {
			s.dropCorrupt(b, full, err)
			return false, nil
		}
		if s.expired(env) {
			_ = b.Delete(full)
			return false, nil
		}
		if dst != nil {
			if err := json.Unmarshal(env.Value, dst); err != nil {
				s.dropCorrupt(b, full, err)
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

// Inspect returns metadata for key without decoding the value. Corrupt
// entries are removed, as in GetItem.
func (s *Storage) Inspect(key string) (ItemInfo, bool, error) {
	full := s.fullKey(key)
	for _, b := range s.backends() {
		data, ok, err := b.Get(full)
		if err != nil {
			return ItemInfo{}, false, fmt.Errorf("kvstore: %s get %q: %w", b.Name(), key, err)
		}
		if !ok {
			continue
		}
		env, err := s.decode(data)
		if err != nil {
			s.dropCorrupt(b, full, err)
			return ItemInfo{}, false, nil
		}
		info := ItemInfo{
			Key:       key,
			Backend:   b.Name(),
			Encoded:   data[0] == headerEncoded,
			Bytes:     len(data),
			CreatedAt: time.UnixMilli(env.CreatedAt),
		}
		if env.ExpiresAt != 0 {
			info.ExpiresAt = time.UnixMilli(env.ExpiresAt)
		}
		return info, true, nil
	}
	return ItemInfo{}, false, nil
}

func (s *Storage) decode(data []byte) (envelope, error) {
	var env envelope
	if len(data) == 0 {
		return env, errors.New("empty payload")
	}
	payload := data[1:]
	switch data[0] {
	case headerPlain:
	case headerEncoded:
		var err error
		if payload, err = s.codec.Decode(payload); err != nil {
			return env, err
		}
	default:
		return env, fmt.Errorf("unknown payload header %q", data[0])
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	return env, nil
}

func (s *Storage) expired(env envelope) bool {
	return env.ExpiresAt != 0 && s.now().UnixMilli() > env.ExpiresAt
}

func (s *Storage) dropCorrupt(b Backend, full string, cause error) {
	metrics.KVStoreCorruptEntries.WithLabelValues(b.Name()).Inc()
	s.log.Debug("Dropping unreadable persisted entry", "backend", b.Name(), "key", full, "error", cause)
	if err := b.Delete(full); err != nil {
		s.log.Debug("Failed to remove unreadable entry", "backend", b.Name(), "key", full, "error", err)
	}
}

// RemoveItem implements Store.
func (s *Storage) RemoveItem(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	full := s.fullKey(key)
	var errs []error
	for _, b := range s.backends() {
		if err := b.Delete(full); err != nil {
			errs = append(errs, fmt.Errorf("kvstore: %s delete %q: %w", b.Name(), key, err))
		}
	}
	return errors.Join(errs...)
}

// GetAllKeys implements Store. Keys are returned sorted and without the
// namespace prefix.
func (s *Storage) GetAllKeys() ([]string, error) {
	return s.keys("")
}

func (s *Storage) keys(prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, b := range s.backends() {
		keys, err := b.Keys(s.fullKey(prefix))
		if err != nil {
			return nil, fmt.Errorf("kvstore: %s keys: %w", b.Name(), err)
		}
		for _, k := range keys {
			seen[s.stripKey(k)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// RemovePrefix deletes every key starting with prefix and returns how many
// keys were removed.
func (s *Storage) RemovePrefix(prefix string) (int, error) {
	removed := 0
	var errs []error
	for _, b := range s.backends() {
		keys, err := b.Keys(s.fullKey(prefix))
		if err != nil {
			errs = append(errs, fmt.Errorf("kvstore: %s keys: %w", b.Name(), err))
			continue
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				errs = append(errs, fmt.Errorf("kvstore: %s delete %q: %w", b.Name(), k, err))
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

// Clear implements Store.
func (s *Storage) Clear() error {
	_, err := s.RemovePrefix("")
	return err
}

// Close closes both backends.
func (s *Storage) Close() error {
	var errs []error
	for _, b := range s.backends() {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
