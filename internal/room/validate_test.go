package room

import (
	"strings"
	"testing"
)

func TestValidateBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"plain message", "let's meet at 5pm", false},
		{"multibyte within limits", strings.Repeat("ü", 100), false},
		{"at char limit", strings.Repeat("a", MaxBodyChars), false},
		{"empty", "", true},
		{"whitespace only", "  \n\t ", true},
		{"over byte limit", strings.Repeat("a", MaxBodyBytes+1), true},
		{"over char limit under byte limit", strings.Repeat("a", MaxBodyChars+1), true},
		{"invalid utf-8", "hello \xff\xfe world", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBody(tt.body)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBody() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
