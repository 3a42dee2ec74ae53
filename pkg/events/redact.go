package events

import (
	"regexp"
	"strings"
)

// Redactor masks sensitive content in free-text payload fields.
//
// The zero value is a no-op redactor.
type Redactor struct {
	patterns []*regexp.Regexp
}

const emailPattern = `(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`

var namedPatterns = map[string]string{
	"email": emailPattern,
	"cc16":  `\b(?:\d[ -]?){16}\b`,
	"jwt":   `eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9._-]+\.[A-Za-z0-9._-]+`,
}

// NewRedactor constructs a redaction pipeline. When redactEmails is true a
// built-in expression masks common email formats. Custom entries are either
// regular expressions or one of the names "email", "cc16", "jwt".
func NewRedactor(redactEmails bool, custom []string) (Redactor, error) {
	patterns := make([]*regexp.Regexp, 0, len(custom)+1)

	if redactEmails {
		patterns = append(patterns, regexp.MustCompile(emailPattern))
	}

	for _, expr := range custom {
		trimmed := strings.TrimSpace(expr)
		if trimmed == "" {
			continue
		}

		candidate := trimmed
		if mapped, ok := namedPatterns[strings.ToLower(trimmed)]; ok {
			candidate = mapped
		}

		rx, err := regexp.Compile(candidate)
		if err != nil {
			return Redactor{}, err
		}
		patterns = append(patterns, rx)
	}

	return Redactor{patterns: patterns}, nil
}

// Enabled reports whether the redactor has any pattern.
func (r Redactor) Enabled() bool { return len(r.patterns) > 0 }

// ApplyString redacts sensitive content from a string.
func (r Redactor) ApplyString(input string) string {
	if len(r.patterns) == 0 || input == "" {
		return input
	}

	redacted := input
	for _, rx := range r.patterns {
		redacted = rx.ReplaceAllString(redacted, "[REDACTED]")
	}
	return redacted
}

// ApplyPayload redacts the free-text fields of p in place.
func (r Redactor) ApplyPayload(p Payload) {
	if len(r.patterns) == 0 {
		return
	}
	switch v := p.(type) {
	case *KeyboardEvent:
		// Individual characters cannot be matched in isolation.
	case *ClipboardEvent:
		v.Content = r.ApplyString(v.Content)
	case *TextSelectionEvent:
		v.Text = r.ApplyString(v.Text)
	case *WindowEvent:
		v.Title = r.ApplyString(v.Title)
		v.URL = r.ApplyString(v.URL)
	case *UIPropertyChangedEvent:
		v.OldValue = r.ApplyString(v.OldValue)
		v.NewValue = r.ApplyString(v.NewValue)
	case *TextInputCompletedEvent:
		v.TextValue = r.ApplyString(v.TextValue)
	case *BrowserTabNavigationEvent:
		v.URL = r.ApplyString(v.URL)
		v.Title = r.ApplyString(v.Title)
		v.FromURL = r.ApplyString(v.FromURL)
		v.FromTitle = r.ApplyString(v.FromTitle)
	}
}
