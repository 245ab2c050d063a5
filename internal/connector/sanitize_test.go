package connector

import "testing"

func TestSanitizeDescription_StripsHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain text", "plain text"},
		{"<b>bold</b> text", "bold text"},
		{`<a href="https://example.com">link</a>`, "link"},
		{`<script>alert("x")</script>safe`, "safe"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeDescription(tt.input); got != tt.want {
			t.Errorf("sanitizeDescription(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSecureAvatarURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"http://example.com/a.png", "https://example.com/a.png"},
		{"HTTP://example.com/a.png", "https://example.com/a.png"},
		{"https://example.com/a.png", "https://example.com/a.png"},
		{"//example.com/a.png", "//example.com/a.png"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := secureAvatarURL(tt.input); got != tt.want {
			t.Errorf("secureAvatarURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
