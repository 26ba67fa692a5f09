package secrets

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ValidationError represents a validation failure for required secrets.
type ValidationError struct {
	Missing []string
	Empty   []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Empty) > 0 {
		parts = append(parts, fmt.Sprintf("empty values for required environment variables: %s", strings.Join(e.Empty, ", ")))
	}
	return strings.Join(parts, "; ")
}

// LookupFunc resolves a variable by name, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// ValidateRequired checks that every named variable is set and non-blank.
// It returns a *ValidationError listing the offenders in sorted order.
func ValidateRequired(lookup LookupFunc, names ...string) error {
	var missing, empty []string
	for _, name := range names {
		value, ok := lookup(name)
		switch {
		case !ok:
			missing = append(missing, name)
		case strings.TrimSpace(value) == "":
			empty = append(empty, name)
		}
	}
	if len(missing) == 0 && len(empty) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(empty)
	return &ValidationError{Missing: missing, Empty: empty}
}

// DecodeKey decodes a key given as hex or base64 (standard or URL alphabet,
// padded or not) and checks that it is exactly size bytes long.
func DecodeKey(encoded string, size int) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("key is empty")
	}
	if len(encoded) == 2*size {
		if key, err := hex.DecodeString(encoded); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(key) != size {
			return nil, fmt.Errorf("key must be %d bytes, got %d", size, len(key))
		}
		return key, nil
	}
	return nil, fmt.Errorf("key is neither %d-byte hex nor base64", size)
}
