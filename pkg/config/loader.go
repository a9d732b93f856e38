// Package config loads the service configuration from struct-tag defaults, a
// YAML (or JSON) file, and environment variables, in that order of
// precedence: env overrides file, file overrides defaults.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Loader resolves configuration for a tagged struct. Fields declare their
// sources through tags:
//
//	Host string `yaml:"host" env:"DB_HOST" default:"localhost"`
//
// The env tag is the full variable name; nested structs are walked but no
// prefix is synthesized.
type Loader struct{}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load populates config from defaults, then the file (when path is
// non-empty), then the environment.
func (l *Loader) Load(configPath string, config interface{}) error {
	if err := l.ApplyDefaults(config); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := l.LoadFromFile(configPath, config); err != nil {
		return err
	}
	if err := l.LoadFromEnv(config); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}
	return nil
}

// ApplyDefaults sets every zero-valued field carrying a default tag.
func (l *Loader) ApplyDefaults(config interface{}) error {
	return l.walk(reflect.ValueOf(config).Elem(), func(field reflect.Value, tag reflect.StructField) error {
		def := tag.Tag.Get("default")
		if def == "" || !field.IsZero() {
			return nil
		}
		if err := setFieldFromString(field, def); err != nil {
			return fmt.Errorf("field %s: %w", tag.Name, err)
		}
		return nil
	})
}

// LoadFromFile loads configuration from a YAML or JSON file.
func (l *Loader) LoadFromFile(configPath string, config interface{}) error {
	if configPath == "" {
		return nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", configPath, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	switch ext := strings.ToLower(filepath.Ext(configPath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config file %s: %w", configPath, err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config file %s: %w", configPath, err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	return nil
}

// LoadFromEnv overrides fields whose env variable is set.
func (l *Loader) LoadFromEnv(config interface{}) error {
	return l.walk(reflect.ValueOf(config).Elem(), func(field reflect.Value, tag reflect.StructField) error {
		name := tag.Tag.Get("env")
		if name == "" {
			return nil
		}
		value := os.Getenv(name)
		if value == "" {
			return nil
		}
		if err := setFieldFromString(field, value); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		return nil
	})
}

// walk visits every settable leaf field of a struct, descending into nested
// structs and allocating nil struct pointers as it goes.
func (l *Loader) walk(value reflect.Value, visit func(reflect.Value, reflect.StructField) error) error {
	if value.Kind() == reflect.Ptr {
		if value.IsNil() {
			value.Set(reflect.New(value.Type().Elem()))
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}

	structType := value.Type()
	for i := 0; i < value.NumField(); i++ {
		field := value.Field(i)
		fieldType := structType.Field(i)
		if !field.CanSet() {
			continue
		}

		kind := field.Kind()
		if kind == reflect.Struct || (kind == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct) {
			if err := l.walk(field, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(field, fieldType); err != nil {
			return err
		}
	}
	return nil
}

// setFieldFromString sets a field value from its string representation.
func setFieldFromString(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool value: %s", value)
		}
		field.SetBool(boolVal)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration value: %s", value)
			}
			field.SetInt(int64(duration))
			return nil
		}
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int value: %s", value)
		}
		field.SetInt(intVal)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintVal, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid uint value: %s", value)
		}
		field.SetUint(uintVal)

	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(floatVal)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}
	return nil
}
