package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const ConfigVersion = 1

// Config is the creation-time configuration of a pipeline. Known keys are typed;
// anything else is carried in Extra. The map form only exists at the JSON edge.
type Config struct {
	Version     int
	Theme       string
	Brief       string
	Duration    int
	Style       string
	Genre       string
	Mood        string
	AspectRatio string
	Language    string
	CoverImage  string
	Extra       map[string]any
}

// ConfigFromMap converts a free-form key/value map into a Config.
func ConfigFromMap(m map[string]any) (Config, error) {
	c := Config{Version: ConfigVersion}
	for k, v := range m {
		var err error
		switch k {
		case "version":
			c.Version, err = toInt(v)
		case "theme":
			c.Theme, err = toString(v)
		case "brief":
			c.Brief, err = toString(v)
		case "duration":
			c.Duration, err = toInt(v)
		case "style":
			c.Style, err = toString(v)
		case "genre":
			c.Genre, err = toString(v)
		case "mood":
			c.Mood, err = toString(v)
		case "aspect_ratio":
			c.AspectRatio, err = toString(v)
		case "language":
			c.Language, err = toString(v)
		case "cover_image":
			c.CoverImage, err = toString(v)
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[k] = v
		}
		if err != nil {
			return Config{}, fmt.Errorf("config key %q: %w", k, err)
		}
	}
	return c, nil
}

// Map returns the config as a flat map, omitting empty values.
func (c Config) Map() map[string]any {
	m := make(map[string]any, len(c.Extra)+8)
	for k, v := range c.Extra {
		m[k] = v
	}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("theme", c.Theme)
	put("brief", c.Brief)
	put("style", c.Style)
	put("genre", c.Genre)
	put("mood", c.Mood)
	put("aspect_ratio", c.AspectRatio)
	put("language", c.Language)
	put("cover_image", c.CoverImage)
	if c.Duration > 0 {
		m["duration"] = c.Duration
	}
	if c.Version > 0 {
		m["version"] = c.Version
	}
	return m
}

// Has reports whether key carries a non-empty value.
func (c Config) Has(key string) bool {
	v, ok := c.Map()[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}

func (c Config) Clone() Config {
	cp := c
	if c.Extra != nil {
		cp.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := ConfigFromMap(m)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(t)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
