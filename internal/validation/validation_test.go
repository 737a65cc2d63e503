package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"kai@example.com",
		"first.last@sub.example.co",
		"name+tag@example.io",
	}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("Expected %q to be valid", e)
		}
	}

	invalid := []string{
		"",
		"not-an-email",
		"missing@domain@example.com",
		"Kai <kai@example.com>",
		"   kai@example.com",
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("Expected %q to be invalid", e)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello  ", 100); got != "hello" {
		t.Errorf("Expected trimmed string, got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("Expected truncation to 3, got %q", got)
	}
	if got := SanitizeString("a\x00b", 100); got != "ab" {
		t.Errorf("Expected null bytes stripped, got %q", got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  KAI@Example.COM "); got != "kai@example.com" {
		t.Errorf("Expected normalized email, got %q", got)
	}
}
