package minimact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ChangeData wraps an incoming state-change payload with utilities for
// binding and validation before the changes reach an instance.
type ChangeData struct {
	raw   map[string]any
	bytes []byte // Cached JSON for efficient binding
}

// NewChangeData wraps a raw changes map.
func NewChangeData(changes map[string]any) *ChangeData {
	return &ChangeData{raw: changes}
}

// Bind unmarshals the changes into a struct
func (c *ChangeData) Bind(v any) error {
	// Lazy marshal to JSON
	if c.bytes == nil {
		var err error
		c.bytes, err = json.Marshal(c.raw)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	return json.Unmarshal(c.bytes, v)
}

// BindAndValidate binds changes to a struct and validates it in one step
func (c *ChangeData) BindAndValidate(v any, validate *validator.Validate) error {
	if err := c.Bind(v); err != nil {
		return err
	}

	if err := validate.Struct(v); err != nil {
		return ValidationToMultiError(err)
	}

	return nil
}

// Raw returns the underlying map for direct access
func (c *ChangeData) Raw() map[string]any {
	return c.raw
}

// GetString extracts a string value
func (c *ChangeData) GetString(key string) string {
	if v, ok := c.raw[key].(string); ok {
		return v
	}
	return ""
}

// GetInt extracts an int value (JSON numbers are float64)
func (c *ChangeData) GetInt(key string) int {
	if v, ok := c.raw[key].(float64); ok {
		return int(v)
	}
	return 0
}

// GetFloat extracts a float64 value
func (c *ChangeData) GetFloat(key string) float64 {
	if v, ok := c.raw[key].(float64); ok {
		return v
	}
	return 0
}

// GetBool extracts a bool value
func (c *ChangeData) GetBool(key string) bool {
	if v, ok := c.raw[key].(bool); ok {
		return v
	}
	return false
}

// Has checks if a key exists
func (c *ChangeData) Has(key string) bool {
	_, exists := c.raw[key]
	return exists
}

// Get returns the raw value for a key
func (c *ChangeData) Get(key string) any {
	return c.raw[key]
}

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError creates a field-specific error
func NewFieldError(field string, err error) FieldError {
	return FieldError{Field: field, Message: err.Error()}
}

// MultiError is a collection of field errors (implements error interface)
type MultiError []FieldError

func (m MultiError) Error() string {
	if len(m) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range m {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidationToMultiError converts go-playground/validator errors to MultiError
func ValidationToMultiError(err error) MultiError {
	var fieldErrors MultiError

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fieldErrors
	}

	for _, e := range validationErrs {
		fieldName := strings.ToLower(e.Field())

		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", e.Field())
		case "min":
			message = fmt.Sprintf("%s must have at least %s entries", e.Field(), e.Param())
		case "max":
			message = fmt.Sprintf("%s must have at most %s entries", e.Field(), e.Param())
		default:
			message = fmt.Sprintf("%s is invalid", e.Field())
		}

		fieldErrors = append(fieldErrors, FieldError{
			Field:   fieldName,
			Message: message,
		})
	}

	return fieldErrors
}
