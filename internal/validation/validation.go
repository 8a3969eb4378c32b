package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator provides validation utilities
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// MinLength validates minimum string length
func (v *Validator) MinLength(field, value string, min int) {
	if len(value) < min {
		v.AddError(field, fmt.Sprintf("must be at least %d characters", min))
	}
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) {
	if len(value) > max {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// MinValue validates minimum numeric value
func (v *Validator) MinValue(field string, value, min float64) {
	if value < min {
		v.AddError(field, fmt.Sprintf("must be at least %v", min))
	}
}

// MaxValue validates maximum numeric value
func (v *Validator) MaxValue(field string, value, max float64) {
	if value > max {
		v.AddError(field, fmt.Sprintf("must be at most %v", max))
	}
}

// Positive validates that a number is positive
func (v *Validator) Positive(field string, value float64) {
	if value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// NonNegative validates that a number is non-negative
func (v *Validator) NonNegative(field string, value float64) {
	if value < 0 {
		v.AddError(field, "must be non-negative")
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// Email validates email format
func (v *Validator) Email(field, value string) {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(value) {
		v.AddError(field, "must be a valid email address")
	}
}

// UUID validates UUID format
func (v *Validator) UUID(field, value string) {
	if _, err := uuid.Parse(value); err != nil {
		v.AddError(field, "must be a valid UUID")
	}
}

// Symbol validates trading pair symbol format (e.g., BTC/USDT)
func (v *Validator) Symbol(field, value string) {
	symbolRegex := regexp.MustCompile(`^[A-Z]{2,10}/[A-Z]{2,10}$`)
	if !symbolRegex.MatchString(value) {
		v.AddError(field, "must be a valid symbol (e.g., BTC/USDT)")
	}
}

// Alphanumeric validates that a string contains only alphanumeric characters
func (v *Validator) Alphanumeric(field, value string) {
	alphanumericRegex := regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	if !alphanumericRegex.MatchString(value) {
		v.AddError(field, "must contain only alphanumeric characters")
	}
}

// NoSpecialChars validates that a string doesn't contain special characters that could be used for injection
func (v *Validator) NoSpecialChars(field, value string) {
	// Disallow characters commonly used in injection attacks
	dangerousChars := []string{"<", ">", "'", "\"", ";", "--", "/*", "*/", "DROP", "SELECT", "INSERT", "UPDATE", "DELETE"}
	upperValue := strings.ToUpper(value)
	for _, char := range dangerousChars {
		if strings.Contains(upperValue, char) {
			v.AddError(field, "contains disallowed characters")
			return
		}
	}
}

// SessionParamsValidator validates session-fabric request parameters
// (§4.E session config, §4.F task submission).
type SessionParamsValidator struct {
	*Validator
}

// NewSessionParamsValidator creates a validator for session-fabric requests
func NewSessionParamsValidator() *SessionParamsValidator {
	return &SessionParamsValidator{
		Validator: NewValidator(),
	}
}

// ValidateRole checks that role is one of host, participant or
// observer; this list is separate from internal/rbac's role set
func (v *SessionParamsValidator) ValidateRole(role string) {
	v.Required("role", role)
	if v.HasErrors() {
		return
	}
	v.OneOf("role", role, []string{"host", "participant", "observer"})
}

// ValidateMaxParticipants validates a session's participant cap
func (v *SessionParamsValidator) ValidateMaxParticipants(max int) {
	v.MinValue("max_participants", float64(max), 2)
	v.MaxValue("max_participants", float64(max), 50)
}

// ValidateTaskDescription validates a task's free-text description
func (v *SessionParamsValidator) ValidateTaskDescription(description string) {
	v.Required("description", description)
	if v.HasErrors() {
		return
	}
	v.MaxLength("description", description, 10000)
	v.NoSpecialChars("description", description)
}

// ValidateLatencyTargetMS validates a swarm delegation latency target
func (v *SessionParamsValidator) ValidateLatencyTargetMS(ms int64) {
	v.Positive("latency_target_ms", float64(ms))
	v.MaxValue("latency_target_ms", float64(ms), 600000) // 10 minutes
}

// SanitizeInput sanitizes user input to prevent injection attacks
func SanitizeInput(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	// Limit length to prevent DoS
	if len(input) > 10000 {
		input = input[:10000]
	}

	return input
}
