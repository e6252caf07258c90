package config

import "fmt"

// ConfigError is a single invalid or missing setting. Startup treats any
// ConfigError as fatal.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func fieldErr(field, msg string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: msg, Err: err}
}
