package cache

import (
	"unicode/utf16"

	json "github.com/goccy/go-json"
)

// fallbackSize is charged for values that cannot be serialized.
const fallbackSize = 1024

// estimateSize charges two bytes per UTF-16 code unit of the value's JSON
// form. It also returns that JSON so the mirror does not encode twice; a nil
// result means the value cannot be persisted.
func estimateSize(value any) (size int64, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			size, raw = fallbackSize, nil
		}
	}()

	// No HTML escaping: "<" counts as one character, not six.
	raw, err := json.MarshalNoEscape(value)
	if err != nil {
		return fallbackSize, nil
	}
	var units int64
	for _, r := range string(raw) {
		units += int64(utf16.RuneLen(r))
	}
	return units * 2, raw
}
