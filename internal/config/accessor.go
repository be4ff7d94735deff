package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// toMap renders cfg through its JSON tags, which are the names used in paths.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath returns the value at a dotted path such as "memos.baseURL". A
// section path returns the whole section.
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		section, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
		if cur, ok = section[key]; !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownKey, path)
		}
	}
	return cur, nil
}

// SetByPath sets the leaf at a dotted path. String input that parses as a
// bool or number is converted first; if the field turns out to be a string
// the raw input is used.
func SetByPath(cfg *Config, path string, value any) error {
	err := setByPath(cfg, path, parseValue(value))
	if err == nil {
		return nil
	}
	if _, isString := value.(string); !isString || errors.Is(err, errUnknownKey) {
		return err
	}
	return setByPath(cfg, path, value)
}

var errUnknownKey = errors.New("unknown config key")

// setByPath writes value into the map form of cfg and decodes it back
// strictly, so unknown keys and wrong types are rejected and cfg is left
// untouched on error.
func setByPath(cfg *Config, path string, value any) error {
	parts := strings.Split(path, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: %s (want section.key)", errUnknownKey, path)
	}
	m, err := toMap(cfg)
	if err != nil {
		return err
	}
	section, ok := m[parts[0]].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownKey, path)
	}
	if _, ok := section[parts[1]]; !ok {
		return fmt.Errorf("%w: %s", errUnknownKey, path)
	}
	section[parts[1]] = value

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var updated Config
	if err := dec.Decode(&updated); err != nil {
		return fmt.Errorf("invalid value for %s: %w", path, err)
	}
	*cfg = updated
	return nil
}

func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of the config with credentials masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	if c.Telegram.Token != "" {
		c.Telegram.Token = maskString(c.Telegram.Token)
	}
	if c.Telegram.WebhookSecret != "" {
		c.Telegram.WebhookSecret = "***"
	}
	if c.Memos.Token != "" {
		c.Memos.Token = maskString(c.Memos.Token)
	}
	if c.Album.RedisURL != "" {
		c.Album.RedisURL = maskURLPassword(c.Album.RedisURL)
	}
	return &c
}

// maskURLPassword hides the password of a URL such as redis://:pw@host:6379.
func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// maskString keeps a short prefix and suffix so tokens stay recognizable.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

// ListPaths flattens cfg into dotted path → value pairs.
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(k, sub, out)
			continue
		}
		out[k] = v
	}
}
