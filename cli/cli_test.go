package cli

import (
	"testing"

	"github.com/sigpress/pdfsigner/sign"
)

func TestParseStandard(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected sign.Standard
		wantErr  bool
	}{
		{"CMS", "CMS", sign.CMS, false},
		{"CAdES", "CAdES", sign.CAdES, false},
		{"unknown", "XAdES", 0, true},
		{"empty", "", 0, true},
		{"lowercase rejected", "cms", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseStandard(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseStandard(%q) expected error but got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseStandard(%q) unexpected error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("ParseStandard(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
