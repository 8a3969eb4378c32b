package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_Required(t *testing.T) {
	v := NewValidator()

	v.Required("field", "")
	assert.True(t, v.HasErrors())
	assert.Equal(t, "field", v.Errors()[0].Field)
	assert.Contains(t, v.Errors()[0].Message, "required")

	v = NewValidator()
	v.Required("field", "  ")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Required("field", "value")
	assert.False(t, v.HasErrors())
}

func TestValidator_MinLength(t *testing.T) {
	v := NewValidator()

	v.MinLength("field", "ab", 3)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.MinLength("field", "abc", 3)
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.MinLength("field", "abcd", 3)
	assert.False(t, v.HasErrors())
}

func TestValidator_MaxLength(t *testing.T) {
	v := NewValidator()

	v.MaxLength("field", "abcd", 3)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.MaxLength("field", "abc", 3)
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.MaxLength("field", "ab", 3)
	assert.False(t, v.HasErrors())
}

func TestValidator_MinValue(t *testing.T) {
	v := NewValidator()

	v.MinValue("field", 5.0, 10.0)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.MinValue("field", 10.0, 10.0)
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.MinValue("field", 15.0, 10.0)
	assert.False(t, v.HasErrors())
}

func TestValidator_MaxValue(t *testing.T) {
	v := NewValidator()

	v.MaxValue("field", 15.0, 10.0)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.MaxValue("field", 10.0, 10.0)
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.MaxValue("field", 5.0, 10.0)
	assert.False(t, v.HasErrors())
}

func TestValidator_Positive(t *testing.T) {
	v := NewValidator()

	v.Positive("field", -1.0)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Positive("field", 0.0)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Positive("field", 1.0)
	assert.False(t, v.HasErrors())
}

func TestValidator_NonNegative(t *testing.T) {
	v := NewValidator()

	v.NonNegative("field", -1.0)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.NonNegative("field", 0.0)
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.NonNegative("field", 1.0)
	assert.False(t, v.HasErrors())
}

func TestValidator_OneOf(t *testing.T) {
	v := NewValidator()

	v.OneOf("field", "invalid", []string{"a", "b", "c"})
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.OneOf("field", "b", []string{"a", "b", "c"})
	assert.False(t, v.HasErrors())
}

func TestValidator_Email(t *testing.T) {
	v := NewValidator()

	v.Email("field", "invalid")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Email("field", "user@example.com")
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.Email("field", "user.name+tag@example.co.uk")
	assert.False(t, v.HasErrors())
}

func TestValidator_UUID(t *testing.T) {
	v := NewValidator()

	v.UUID("field", "invalid")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.UUID("field", "550e8400-e29b-41d4-a716-446655440000")
	assert.False(t, v.HasErrors())
}

func TestValidator_Symbol(t *testing.T) {
	v := NewValidator()

	v.Symbol("field", "invalid")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Symbol("field", "BTC/USDT")
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.Symbol("field", "ETH/BTC")
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.Symbol("field", "btc/usdt") // lowercase should fail
	assert.True(t, v.HasErrors())
}

func TestValidator_Alphanumeric(t *testing.T) {
	v := NewValidator()

	v.Alphanumeric("field", "abc123")
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.Alphanumeric("field", "abc-123")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Alphanumeric("field", "abc 123")
	assert.True(t, v.HasErrors())
}

func TestValidator_NoSpecialChars(t *testing.T) {
	v := NewValidator()

	v.NoSpecialChars("field", "normal text 123")
	assert.False(t, v.HasErrors())

	// SQL injection attempts
	v = NewValidator()
	v.NoSpecialChars("field", "'; DROP TABLE users; --")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.NoSpecialChars("field", "<script>alert('xss')</script>")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.NoSpecialChars("field", "SELECT * FROM users")
	assert.True(t, v.HasErrors())
}

func TestSessionParamsValidator_ValidateRole(t *testing.T) {
	v := NewSessionParamsValidator()

	v.ValidateRole("")
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateRole("INVALID")
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateRole("host")
	assert.False(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateRole("observer")
	assert.False(t, v.HasErrors())
}

func TestSessionParamsValidator_ValidateMaxParticipants(t *testing.T) {
	v := NewSessionParamsValidator()

	v.ValidateMaxParticipants(1)
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateMaxParticipants(51)
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateMaxParticipants(8)
	assert.False(t, v.HasErrors())
}

func TestSessionParamsValidator_ValidateTaskDescription(t *testing.T) {
	v := NewSessionParamsValidator()

	v.ValidateTaskDescription("")
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateTaskDescription("'; DROP TABLE sessions; --")
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateTaskDescription("summarize the last ten handoffs")
	assert.False(t, v.HasErrors())
}

func TestSessionParamsValidator_ValidateLatencyTargetMS(t *testing.T) {
	v := NewSessionParamsValidator()

	v.ValidateLatencyTargetMS(0)
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateLatencyTargetMS(700000) // Exceeds max
	assert.True(t, v.HasErrors())

	v = NewSessionParamsValidator()
	v.ValidateLatencyTargetMS(2000)
	assert.False(t, v.HasErrors())
}

func TestSanitizeInput(t *testing.T) {
	// Test null byte removal
	input := "test\x00value"
	sanitized := SanitizeInput(input)
	assert.Equal(t, "testvalue", sanitized)

	// Test whitespace trimming
	input = "  test  "
	sanitized = SanitizeInput(input)
	assert.Equal(t, "test", sanitized)

	// Test length limiting
	longInput := make([]byte, 15000)
	for i := range longInput {
		longInput[i] = 'a'
	}
	input = string(longInput)
	sanitized = SanitizeInput(input)
	assert.Equal(t, 10000, len(sanitized))
}

func TestValidationErrors(t *testing.T) {
	errors := ValidationErrors{}
	assert.False(t, errors.HasErrors())
	assert.Equal(t, "", errors.Error())

	errors = ValidationErrors{
		ValidationError{Field: "field1", Message: "error1"},
	}
	assert.True(t, errors.HasErrors())
	assert.Contains(t, errors.Error(), "field1")

	errors = ValidationErrors{
		ValidationError{Field: "field1", Message: "error1"},
		ValidationError{Field: "field2", Message: "error2"},
	}
	assert.True(t, errors.HasErrors())
	assert.Contains(t, errors.Error(), "field1")
	assert.Contains(t, errors.Error(), "field2")
}
