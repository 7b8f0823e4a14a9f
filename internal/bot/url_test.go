package bot

import "testing"

func TestValidateMediaURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://twitter.com/someuser/status/1234567890", true},
		{"https://x.com/someuser/status/1234567890", true},
		{"http://www.twitter.com/someuser/status/1234567890", true},
		{"https://x.com/i/status/1234567890", true},
		{"https://x.com/someuser/status/1234567890?s=20", true},
		{"https://twitter.com/someuser", false},
		{"https://youtube.com/watch?v=abc", false},
		{"https://x.com/someuser/status/", false},
		{"not a url at all", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidateMediaURL(tt.url); got != tt.valid {
			t.Errorf("ValidateMediaURL(%q) = %v, expected %v", tt.url, got, tt.valid)
		}
	}
}

func TestParseStatusID(t *testing.T) {
	id, ok := ParseStatusID("https://x.com/someuser/status/1234567890?s=20")
	if !ok || id != "1234567890" {
		t.Errorf("Expected id 1234567890, got %q (ok=%v)", id, ok)
	}

	if _, ok := ParseStatusID("https://x.com/someuser"); ok {
		t.Error("Expected no id for a profile URL")
	}
}
