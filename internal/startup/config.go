package startup

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"video-optimizer/internal/logging"
)

// source resolves configuration keys. Environment variables win over values
// from the optional YAML file.
type source struct {
	file     map[string]string
	fileName string
	getenv   func(string) string
}

// newSource reads the YAML file at path, if any. File keys may be written in
// either case with dashes or dots as separators ("work-dir", "work.dir",
// "WORK_DIR").
func newSource(path string, getenv func(string) string) (*source, error) {
	s := &source{file: map[string]string{}, fileName: path, getenv: getenv}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for k, v := range raw {
		key := keyReplacer.Replace(strings.ToUpper(strings.TrimSpace(k)))
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config file %s: %s must be a single value", path, k)
		case nil:
			continue
		}
		s.file[key] = fmt.Sprint(v)
	}
	return s, nil
}

var keyReplacer = strings.NewReplacer("-", "_", ".", "_")

// lookup returns the raw value for key and where it came from.
func (s *source) lookup(key string) (value, origin string, ok bool) {
	if v := s.getenv(key); v != "" {
		return v, "env", true
	}
	if v, found := s.file[key]; found && v != "" {
		return v, "file", true
	}
	return "", "", false
}

func (s *source) getString(key, def string) string {
	if v, _, ok := s.lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (s *source) getBool(key string, def bool) bool {
	v, origin, ok := s.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		logging.Warn("  Invalid boolean for %s (%s): %q, using default: %v", key, origin, v, def)
		return def
	}
	return parsed
}

// getInt parses an integer in [lo, hi].
func (s *source) getInt(key string, def, lo, hi int) int {
	v, origin, ok := s.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < lo || n > hi {
		logging.Warn("  Invalid %s (%s): %q (want %d..%d), using default: %d", key, origin, v, lo, hi, def)
		return def
	}
	return n
}

// getDuration parses a Go duration. Negative values are rejected.
func (s *source) getDuration(key string, def time.Duration) time.Duration {
	v, origin, ok := s.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d < 0 {
		logging.Warn("  Invalid %s (%s): %q, using default: %v", key, origin, v, def)
		return def
	}
	return d
}

// getSize parses a byte size such as "2GiB", "512MB" or "1048576".
func (s *source) getSize(key string, def int64) int64 {
	v, origin, ok := s.lookup(key)
	if !ok {
		return def
	}
	n, err := ParseSize(v)
	if err != nil {
		logging.Warn("  Invalid %s (%s): %v, using default: %d", key, origin, err, def)
		return def
	}
	return n
}

var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"k":   1 << 10,
	"kib": 1 << 10,
	"kb":  1000,
	"m":   1 << 20,
	"mib": 1 << 20,
	"mb":  1000 * 1000,
	"g":   1 << 30,
	"gib": 1 << 30,
	"gb":  1000 * 1000 * 1000,
	"t":   1 << 40,
	"tib": 1 << 40,
	"tb":  1000 * 1000 * 1000 * 1000,
}

// ParseSize parses a non-negative byte size. Bare K/M/G/T and the IEC
// suffixes are binary; KB/MB/GB/TB are decimal.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("size %q has no number", s)
	}

	num, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, fmt.Errorf("size %q: %w", s, err)
	}
	unit, ok := sizeUnits[strings.ToLower(strings.TrimSpace(s[i:]))]
	if !ok {
		return 0, fmt.Errorf("size %q has unknown unit", s)
	}

	bytes := num * float64(unit)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(bytes), nil
}
