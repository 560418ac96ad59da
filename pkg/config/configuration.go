package config

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/spf13/cast"
)

// ErrMissingKey is returned by the Require accessors when a mandatory key is
// absent. Node setup treats it as fatal.
var ErrMissingKey = errors.New("config: missing key")

// ErrInvalidValue is returned by the Require accessors when a key is present
// but cannot be coerced to the requested type.
var ErrInvalidValue = errors.New("config: invalid value")

// Configuration is the opaque key/value object handed to a node at setup. It
// may be nil. Lookups fall back to a case-insensitive match because viper
// lower-cases keys read from YAML.
type Configuration map[string]any

func (c Configuration) lookup(key string) (any, bool) {
    if c == nil { return nil, false }
    if v, ok := c[key]; ok { return v, true }
    for k, v := range c {
        if strings.EqualFold(k, key) { return v, true }
    }
    return nil, false
}

// Has reports whether key is present.
func (c Configuration) Has(key string) bool { _, ok := c.lookup(key); return ok }

// String returns the value of key or def when absent or not coercible.
func (c Configuration) String(key, def string) string {
    v, ok := c.lookup(key)
    if !ok { return def }
    s, err := cast.ToStringE(v)
    if err != nil { return def }
    return s
}

// Int returns the value of key or def when absent or not coercible.
func (c Configuration) Int(key string, def int64) int64 {
    v, ok := c.lookup(key)
    if !ok { return def }
    n, err := cast.ToInt64E(v)
    if err != nil { return def }
    return n
}

// Float returns the value of key or def when absent or not coercible.
func (c Configuration) Float(key string, def float64) float64 {
    v, ok := c.lookup(key)
    if !ok { return def }
    f, err := cast.ToFloat64E(v)
    if err != nil { return def }
    return f
}

// Bool returns the value of key or def when absent or not coercible.
func (c Configuration) Bool(key string, def bool) bool {
    v, ok := c.lookup(key)
    if !ok { return def }
    b, err := cast.ToBoolE(v)
    if err != nil { return def }
    return b
}

// Duration accepts Go duration strings ("250ms"). Bare numbers, including
// numeric strings, are milliseconds: "period: 100" means 100ms.
func (c Configuration) Duration(key string, def time.Duration) time.Duration {
    v, ok := c.lookup(key)
    if !ok { return def }
    if d, isDur := v.(time.Duration); isDur { return d }
    if ms, err := cast.ToFloat64E(v); err == nil { return time.Duration(ms * float64(time.Millisecond)) }
    d, err := cast.ToDurationE(v)
    if err != nil { return def }
    return d
}

// RequireString returns the value of a mandatory key.
func (c Configuration) RequireString(key string) (string, error) {
    v, ok := c.lookup(key)
    if !ok { return "", fmt.Errorf("%w: %s", ErrMissingKey, key) }
    s, err := cast.ToStringE(v)
    if err != nil { return "", fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err) }
    return s, nil
}

// RequireInt returns the value of a mandatory key.
func (c Configuration) RequireInt(key string) (int64, error) {
    v, ok := c.lookup(key)
    if !ok { return 0, fmt.Errorf("%w: %s", ErrMissingKey, key) }
    n, err := cast.ToInt64E(v)
    if err != nil { return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err) }
    return n, nil
}

// Strings returns a list value ("a,b" strings are split on commas) or def.
func (c Configuration) Strings(key string, def []string) []string {
    v, ok := c.lookup(key)
    if !ok { return def }
    if s, isStr := v.(string); isStr { v = strings.Split(s, ",") }
    out, err := cast.ToStringSliceE(v)
    if err != nil || len(out) == 0 { return def }
    for i := range out { out[i] = strings.TrimSpace(out[i]) }
    return out
}
