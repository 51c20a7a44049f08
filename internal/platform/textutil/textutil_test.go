package textutil

import (
	"testing"
)

func TestFold(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Beyoncé", "beyonce"},
		{"  ROSALÍA ", "rosalia"},
		{"Mañana", "manana"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Fold(tt.input); got != tt.expected {
			t.Errorf("Fold(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bad Bunny", "bad-bunny"},
		{"Peso Plumá & Friends!", "peso-pluma-friends"},
		{"--already-a-slug--", "already-a-slug"},
		{"Ñengo Flow", "nengo-flow"},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.expected {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain text", input: "  Hello World ", expected: "Hello World"},
		{name: "inline tags", input: "<b>Top</b> <i>track</i>", expected: "Top track"},
		{name: "entities", input: "Rock &amp; Roll &quot;live&quot;", expected: `Rock & Roll "live"`},
		{name: "line breaks", input: "one<br>two<br/>three", expected: "one\ntwo\nthree"},
		{name: "comments", input: "<!-- note -->visible", expected: "visible"},
		{name: "paragraphs", input: "<p>first</p><p>second</p>", expected: "first\nsecond"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTags(tt.input); got != tt.expected {
				t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSafeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{" https://example.com/a ", "https://example.com/a"},
		{"JavaScript:alert(1)", ""},
		{"data:text/html;base64,xx", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SafeURL(tt.input); got != tt.expected {
			t.Errorf("SafeURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
