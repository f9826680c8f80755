package utils

import (
	"strings"
	"testing"
)

func TestValidator_Required(t *testing.T) {
	v := NewValidator()

	if v.Required("name", "") {
		t.Error("Expected empty string to fail")
	}
	if v.Required("name", "   ") {
		t.Error("Expected whitespace-only string to fail")
	}
	if !v.Required("name", "value") {
		t.Error("Expected non-empty string to pass")
	}
	if !v.HasErrors() {
		t.Error("Expected validator to collect errors")
	}
}

func TestValidator_ValidateUsername(t *testing.T) {
	valid := []string{"alice", "user_123", "a-b-c"}
	invalid := []string{"", "ab", "user name", "user@name", strings.Repeat("a", 51)}

	for _, u := range valid {
		v := NewValidator()
		if !v.ValidateUsername("username", u) {
			t.Errorf("Expected username '%s' to be valid", u)
		}
	}
	for _, u := range invalid {
		v := NewValidator()
		if v.ValidateUsername("username", u) {
			t.Errorf("Expected username '%s' to be invalid", u)
		}
	}
}

func TestValidator_ValidateEmail(t *testing.T) {
	valid := []string{"a@b.co", "user.name+tag@example.com"}
	invalid := []string{"", "plain", "@example.com", "user@"}

	for _, e := range valid {
		v := NewValidator()
		if !v.ValidateEmail("email", e) {
			t.Errorf("Expected email '%s' to be valid", e)
		}
	}
	for _, e := range invalid {
		v := NewValidator()
		if v.ValidateEmail("email", e) {
			t.Errorf("Expected email '%s' to be invalid", e)
		}
	}
}

func TestValidator_ValidateRoomTitle(t *testing.T) {
	valid := []string{"My Room", "ab", strings.Repeat("x", 100)}
	invalid := []string{"", "a", strings.Repeat("x", 101)}

	for _, title := range valid {
		v := NewValidator()
		if !v.ValidateRoomTitle("title", title) {
			t.Errorf("Expected title '%s' to be valid", title)
		}
	}
	for _, title := range invalid {
		v := NewValidator()
		if v.ValidateRoomTitle("title", title) {
			t.Errorf("Expected title '%s' to be invalid", title)
		}
	}
}

func TestValidator_ValidateRoomCode(t *testing.T) {
	code, err := GenerateRoomCode()
	if err != nil {
		t.Fatalf("Failed to generate code: %v", err)
	}

	v := NewValidator()
	if !v.ValidateRoomCode("code", code) {
		t.Errorf("Expected generated code '%s' to be valid", code)
	}

	invalid := []string{"", "short", strings.ToUpper(code), code + "0"}
	for _, c := range invalid {
		v := NewValidator()
		if v.ValidateRoomCode("code", c) {
			t.Errorf("Expected code '%s' to be invalid", c)
		}
	}
}

func TestValidator_ValidateTool(t *testing.T) {
	valid := []string{"whiteboard", "editor", "code-share", "poll_2"}
	invalid := []string{"", "W", "Whiteboard", "1tool", strings.Repeat("a", 33)}

	for _, tool := range valid {
		v := NewValidator()
		if !v.ValidateTool("tool", tool) {
			t.Errorf("Expected tool '%s' to be valid", tool)
		}
	}
	for _, tool := range invalid {
		v := NewValidator()
		if v.ValidateTool("tool", tool) {
			t.Errorf("Expected tool '%s' to be invalid", tool)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	v := NewValidator()
	v.AddError("field1", "first problem")
	v.AddError("field2", "second problem")

	msg := v.Errors().Error()
	if !strings.Contains(msg, "field1") || !strings.Contains(msg, "field2") {
		t.Errorf("Expected both fields in error message, got '%s'", msg)
	}
}

func TestSanitizeString(t *testing.T) {
	got := SanitizeString("  hello\x00world\t ")
	if got != "helloworld" {
		t.Errorf("Expected 'helloworld', got '%s'", got)
	}
}
