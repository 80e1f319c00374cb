package content

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	policy = bluemonday.UGCPolicy()

	markdown = goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	)
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names and messages.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// RenderMessage converts message markdown to HTML and sanitizes the
// result. The stored message keeps the raw text; rendering happens on
// the way out.
func RenderMessage(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// ValidateMessage rejects empty or whitespace-only message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("please enter a message")
	}
	return nil
}
