package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// setting is one leaf field of Config addressed by its dotted JSON path,
// e.g. "twilio.auth_token".
type setting struct {
	key    string
	secret bool
	value  reflect.Value
}

// settings walks cfg and returns every leaf field. Fields tagged
// `secret:"true"` are marked for masking.
func settings(cfg *Config) []setting {
	var out []setting
	walk("", reflect.ValueOf(cfg).Elem(), &out)
	return out
}

func walk(prefix string, v reflect.Value, out *[]setting) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			walk(name, v.Field(i), out)
			continue
		}
		*out = append(*out, setting{key: name, secret: f.Tag.Get("secret") == "true", value: v.Field(i)})
	}
}

func lookup(cfg *Config, key string) (setting, bool) {
	key = strings.TrimSpace(key)
	for _, s := range settings(cfg) {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

// IsSecretKey reports whether key names a secret setting.
func IsSecretKey(key string) bool {
	s, ok := lookup(&Config{}, key)
	return ok && s.secret
}

// display returns the setting's value, masked to its last four characters
// when it is a non-empty secret.
func (s setting) display(mask bool) any {
	v := s.value.Interface()
	str, ok := v.(string)
	if !mask || !s.secret || !ok || str == "" {
		return v
	}
	if len(str) <= 4 {
		return "***" + str
	}
	return "***" + str[len(str)-4:]
}

// parse converts raw to the setting's field type and stores it.
func (s setting) parse(raw string) error {
	switch s.value.Kind() {
	case reflect.String:
		s.value.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", s.key, raw)
		}
		s.value.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s expects a whole number, got %q", s.key, raw)
		}
		s.value.SetInt(n)
	default:
		return fmt.Errorf("%s cannot be set from the command line", s.key)
	}
	return nil
}
