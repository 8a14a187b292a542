package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Tracking bounds shared with the settings API.
const (
	MinPollIntervalSecs  = 1
	MaxPollIntervalSecs  = 300
	MinIdleThresholdSecs = 10
	MaxIdleThresholdSecs = 86400
)

// shortRetentionDays is the retention below which Check warns.
const shortRetentionDays = 7

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one finding on a config field. Warnings are reported
// by Check but never fail validation.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports whether the finding is non-fatal.
func (e *ValidationError) IsWarning() bool {
	return e.Warning
}

// ValidationErrors is a collection of validation findings.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	if e.HasErrors() {
		return ErrInvalidConfig
	}
	return nil
}

func (e ValidationErrors) filter(warning bool) ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Warning == warning {
			out = append(out, v)
		}
	}
	return out
}

// Warnings returns only the non-fatal findings.
func (e ValidationErrors) Warnings() ValidationErrors { return e.filter(true) }

// Errors returns only the fatal findings.
func (e ValidationErrors) Errors() ValidationErrors { return e.filter(false) }

// HasErrors reports whether any finding is fatal.
func (e ValidationErrors) HasErrors() bool {
	for _, v := range e {
		if !v.Warning {
			return true
		}
	}
	return false
}

// ValidateConfig returns the fatal findings as ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	if findings := Check(c); findings.HasErrors() {
		return findings.Errors()
	}
	return nil
}

// Check returns every finding, warnings included.
func Check(c *Config) ValidationErrors {
	var findings ValidationErrors

	if c.Version < 1 || c.Version > Version {
		findings = append(findings, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if err := validate().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			findings = append(findings, ValidationError{Field: "config", Message: err.Error()})
			return findings
		}
		for _, fe := range fieldErrs {
			findings = append(findings, ValidationError{
				Field:   fieldPath(fe),
				Message: describe(fe),
			})
		}
	}

	if d := c.Storage.RetentionDays; d > 0 && d < shortRetentionDays {
		findings = append(findings, ValidationError{
			Field:   "storage.retention_days",
			Message: fmt.Sprintf("retention of %d days discards history quickly", d),
			Warning: true,
		})
	}
	return findings
}

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := parseLevel(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		l := sl.Current().Interface().(LoggingConfig)
		if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
			sl.ReportError(l.FilePath, "file_path", "FilePath", "logfile", l.Output)
		}
	}, LoggingConfig{})
	return v
})

// fieldPath turns "Config.server.port" into "server.port".
func fieldPath(fe validator.FieldError) string {
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	return path
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is missing"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("invalid value %v (valid: %s)", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "loglevel":
		return fmt.Sprintf("invalid log level: %v (valid: debug, info, warn, error)", fe.Value())
	case "logfile":
		return fmt.Sprintf("file path is required when output is '%s'", fe.Param())
	case "hostname_rfc1123|ip":
		return fmt.Sprintf("invalid host: %v", fe.Value())
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}

func parseLevel(s string) (string, error) {
	switch l := strings.ToLower(s); l {
	case "debug", "info", "warn", "warning", "error":
		return l, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}
