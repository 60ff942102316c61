package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path
// (e.g. "storage.backend").
func GetByPath(cfg *Config, path string) (any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	parts := strings.Split(path, ".")
	var current any = m
	for _, key := range parts {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path in place.
func SetByPath(cfg *Config, path string, value any) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	if len(parts) == 0 || parts[0] == "" {
		return fmt.Errorf("empty path")
	}

	parent := m
	for i := 0; i < len(parts)-1; i++ {
		child, ok := parent[parts[i]]
		if !ok {
			newMap := make(map[string]any)
			parent[parts[i]] = newMap
			parent = newMap
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot traverse into %T at %s", child, parts[i])
		}
		parent = childMap
	}

	parent[parts[len(parts)-1]] = parseValue(value)

	newData, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(newData, cfg)
}

// parseValue converts string values to the matching Go type so that
// "true" and "8080" land as bool and number, not strings.
func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of the config with credentials masked, for
// printing.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}
	out.Drivers.Telegram.Token = mask(out.Drivers.Telegram.Token)
	out.Drivers.Slack.Token = mask(out.Drivers.Slack.Token)
	out.Drivers.Discord.Token = mask(out.Drivers.Discord.Token)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
