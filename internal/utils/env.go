package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvAsBool parses a boolean environment variable with a default.
func GetEnvAsBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultVal
	}
}

// GetEnvAsInt retrieves an environment variable as an integer with a default fallback.
func GetEnvAsInt(name string, defaultVal int) int {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsInt64 retrieves an environment variable as an int64 with a default fallback.
func GetEnvAsInt64(name string, defaultVal int64) int64 {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.ParseInt(valStr, 10, 64); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsFloat retrieves an environment variable as a float64 with a default fallback.
func GetEnvAsFloat(name string, defaultVal float64) float64 {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsMillis reads an integer number of milliseconds and returns it as a duration.
func GetEnvAsMillis(name string, defaultVal time.Duration) time.Duration {
	ms := GetEnvAsInt64(name, defaultVal.Milliseconds())
	return time.Duration(ms) * time.Millisecond
}

// GetEnvAsString returns the trimmed value of name, or defaultVal when unset or blank.
func GetEnvAsString(name, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return defaultVal
}

// GetEnvAsSlice retrieves an environment variable as a slice of strings, split by a separator.
// Elements are trimmed and empty elements dropped.
func GetEnvAsSlice(name string, defaultVal []string, sep string) []string {
	valStr := strings.TrimSpace(os.Getenv(name))
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(valStr, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
