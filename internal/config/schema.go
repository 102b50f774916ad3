package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field describes one key of the config schema.
type Field struct {
	Path string
	Type reflect.Type
}

// Leaf reports whether the key holds a value rather than a section.
func (f Field) Leaf() bool { return f.Type.Kind() != reflect.Struct }

// Sensitive reports whether the key holds a credential that should not be
// written to the config file in plain text.
func (f Field) Sensitive() bool { return f.Path == "api.token" }

// LookupField resolves a parsed config path against the Config struct's
// yaml keys. Unknown keys are a *ConfigError.
func LookupField(path []string) (Field, error) {
	t := reflect.TypeOf(Config{})
	for i, key := range path {
		if t.Kind() != reflect.Struct {
			return Field{}, &ConfigError{Message: fmt.Sprintf("%s is not a section", strings.Join(path[:i], "."))}
		}
		sf, ok := fieldByYAMLKey(t, key)
		if !ok {
			return Field{}, &ConfigError{Message: "unknown config key: " + strings.Join(path[:i+1], ".")}
		}
		t = sf.Type
	}
	return Field{Path: strings.Join(path, "."), Type: t}, nil
}

func fieldByYAMLKey(t reflect.Type, key string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("yaml"), ",")
		if name == key {
			return sf, true
		}
	}
	return reflect.StructField{}, false
}

// ParseValue converts a command-line string to the field's YAML value.
// Lists are comma separated.
func (f Field) ParseValue(s string) (any, error) {
	switch f.Type.Kind() {
	case reflect.String:
		return s, nil
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, &ConfigError{Message: fmt.Sprintf("%s: expected an integer, got %q", f.Path, s)}
		}
		return n, nil
	case reflect.Slice:
		if f.Type.Elem().Kind() != reflect.Int {
			break
		}
		var out []any
		for _, part := range strings.Split(s, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, &ConfigError{Message: fmt.Sprintf("%s: expected comma-separated integers, got %q", f.Path, s)}
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, &ConfigError{Message: f.Path + " is a section; set one of its keys"}
}

// IsEnvReference reports whether s is exactly one ${VAR} reference.
func IsEnvReference(s string) bool {
	loc := envVarPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// FromRaw decodes a raw config map the way Load decodes the file, without
// environment overrides, so the file's own content can be validated.
func FromRaw(raw map[string]any) (Config, error) {
	cfg := Defaults()
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}
