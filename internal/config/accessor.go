package config

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Dotted paths use the JSON names of the config file, e.g.
// "gateway.timeoutSeconds" or "notify.telegram.chatIds".

// lookup walks cfg along path and returns the addressed field.
func lookup(cfg *Config, path string) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, fmt.Errorf("empty path")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%s: %s is not a section", path, key)
		}
		f, ok := fieldByJSONName(v, key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown config path: %s", path)
		}
		v = f
	}
	return v, nil
}

func fieldByJSONName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if jsonName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// GetByPath returns the value at path. A section path returns the section.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath assigns value to the leaf at path. String values are converted
// to the field's type: "true"/"false" for switches, decimal for numbers and
// "a, b" for lists. Strings stay strings, so a numeric password is kept
// verbatim.
func SetByPath(cfg *Config, path string, value any) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Struct {
		return fmt.Errorf("%s is a section; set one of its fields", path)
	}

	if rv := reflect.ValueOf(value); rv.IsValid() && rv.Type().AssignableTo(v.Type()) {
		v.Set(rv)
		return nil
	}
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s: want true or false, got %q", path, s)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: want an integer, got %q", path, s)
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%s: want a number, got %q", path, s)
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%s: unsupported list type %s", path, v.Type())
		}
		items := splitList(s)
		list := reflect.MakeSlice(v.Type(), len(items), len(items))
		for i, item := range items {
			list.Index(i).SetString(item)
		}
		v.Set(list)
	default:
		return fmt.Errorf("%s: unsupported type %s", path, v.Type())
	}
	return nil
}

// splitList turns "a, b,,c" into ["a" "b" "c"]. An empty string yields an empty list.
func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ListPaths returns every leaf path with its current value.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	collectLeaves("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

func collectLeaves(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := jsonName(t.Field(i))
		if name == "" {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if f := v.Field(i); f.Kind() == reflect.Struct {
			collectLeaves(path, f, out)
		} else {
			out[path] = f.Interface()
		}
	}
}

// Sanitize returns a copy of cfg with credentials masked, for display.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Policy.BlockedKeywords = slices.Clone(cfg.Policy.BlockedKeywords)
	c.Channels.Stream.Types = slices.Clone(cfg.Channels.Stream.Types)
	c.Notify.Telegram.ChatIDs = slices.Clone(cfg.Notify.Telegram.ChatIDs)
	c.Notify.Discord.ChannelIDs = slices.Clone(cfg.Notify.Discord.ChannelIDs)
	c.Notify.Slack.ChannelIDs = slices.Clone(cfg.Notify.Slack.ChannelIDs)

	for _, secret := range []*string{
		&c.Gateway.Password,
		&c.Notify.Telegram.Token,
		&c.Notify.Discord.Token,
		&c.Notify.Slack.Token,
	} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	if c.Channels.Webhook.Secret != "" {
		c.Channels.Webhook.Secret = "***"
	}
	return &c
}

// maskString keeps the first and last 4 characters of long secrets.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
