package content

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello <b>World</b>"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRenderMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		excludes string
	}{
		{"Bold", "hello **world**", "<strong>world</strong>", ""},
		{"Strikethrough", "~~gone~~", "<del>gone</del>", ""},
		{"Autolink", "see https://example.com now", `href="https://example.com"`, ""},
		{"Script stripped", "hi <script>alert(1)</script>", "hi", "<script>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderMessage(tt.input)
			if err != nil {
				t.Fatalf("RenderMessage() error: %v", err)
			}
			if !strings.Contains(got, tt.contains) {
				t.Errorf("RenderMessage() = %q, want it to contain %q", got, tt.contains)
			}
			if tt.excludes != "" && strings.Contains(got, tt.excludes) {
				t.Errorf("RenderMessage() = %q, must not contain %q", got, tt.excludes)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Plain text", "hello", false},
		{"Leading whitespace", "  hello", false},
		{"Empty", "", true},
		{"Spaces only", "   ", true},
		{"Newlines only", "\n\t ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateMessage(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
