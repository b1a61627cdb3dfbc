package config

import (
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// reader collects parse failures so Load reports every bad key at once.
type reader struct {
	lookup func(string) (string, bool)
	bad    map[string]any
}

func (r *reader) value(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) fail(key, raw string) {
	if r.bad == nil {
		r.bad = map[string]any{}
	}
	r.bad[key] = raw
}

func (r *reader) str(key, def string) string {
	if v, ok := r.value(key); ok {
		return v
	}
	return def
}

func (r *reader) first(def string, keys ...string) string {
	for _, key := range keys {
		if v, ok := r.value(key); ok {
			return v
		}
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.value(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v)
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.value(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v)
		return def
	}
	return b
}

// duration accepts Go duration strings ("15m") or a bare number of seconds.
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.value(key)
	if !ok {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v)
		return def
	}
	return d
}

// limit reads KEY_MAX and KEY_WINDOW.
func (r *reader) limit(prefix string, def RateLimit) RateLimit {
	return RateLimit{
		Max:    r.integer(prefix+"_MAX", def.Max),
		Window: r.duration(prefix+"_WINDOW", def.Window),
	}
}

func (r *reader) err() error {
	if len(r.bad) == 0 {
		return nil
	}
	return goerrors.New("invalid environment values", goerrors.CategoryValidation).
		WithTextCode("INVALID_ENVIRONMENT").
		WithMetadata(r.bad)
}
