package errors

import (
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"raw backend id", "12345", false},
		{"qualified", "letterboxd:film:amelie", false},
		{"url form", "letterboxd://film/amelie/similar", false},
		{"batch", "ext:a,ext:b", false},

		{"empty", "", true},
		{"control char", "ext:a\x01", true},
		{"null byte", "ext:\x00", true},
		{"backslash", `ext:a\b`, true},
		{"too long", strings.Repeat("a", maxKeyLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidInput) {
				t.Errorf("ValidateKey(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidInput)
			}
		})
	}
}

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "letterboxd", false},
		{"with dash", "peer-1", false},
		{"with underscore", "my_source", false},

		{"empty", "", true},
		{"uppercase", "Letterboxd", true},
		{"colon", "a:b", true},
		{"starts with dash", "-a", true},
		{"spaces", "my source", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSlug(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSlug(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
