package sign

import (
	"errors"
	"strings"
	"testing"
)

func TestComputeByteRange(t *testing.T) {
	tests := []struct {
		name       string
		windows    []exclusionWindow
		fileLength int64
		want       []int64
		wantErr    error
	}{
		{
			name:       "single window",
			windows:    []exclusionWindow{{Offset: 100, Length: 50}},
			fileLength: 1000,
			want:       []int64{0, 100, 150, 850},
		},
		{
			name:       "window at EOF",
			windows:    []exclusionWindow{{Offset: 900, Length: 100}},
			fileLength: 1000,
			want:       []int64{0, 900, 1000, 0},
		},
		{
			name:       "two windows sorted by offset",
			windows:    []exclusionWindow{{Offset: 500, Length: 10}, {Offset: 100, Length: 20}},
			fileLength: 1000,
			want:       []int64{0, 100, 120, 380, 510, 490},
		},
		{
			name:       "overlapping windows",
			windows:    []exclusionWindow{{Offset: 100, Length: 50}, {Offset: 120, Length: 10}},
			fileLength: 1000,
			wantErr:    ErrOverlappingRanges,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := computeByteRange(tt.windows, tt.fileLength)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("computeByteRange: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFormatByteRangeWidth(t *testing.T) {
	literal, err := formatByteRange([]int64{0, 123, 456, 789})
	if err != nil {
		t.Fatalf("formatByteRange: %v", err)
	}
	if len(literal) != byteRangePlaceholderWidth {
		t.Fatalf("literal is %d bytes, want %d", len(literal), byteRangePlaceholderWidth)
	}
	if !strings.HasPrefix(literal, "[0 123 456 789]") {
		t.Fatalf("literal = %q", literal)
	}
	if strings.TrimRight(literal, " ") != "[0 123 456 789]" {
		t.Fatalf("literal not space padded: %q", literal)
	}
}

func TestFormatByteRangeTooWide(t *testing.T) {
	values := make([]int64, 10)
	for i := range values {
		values[i] = 1234567890123456789
	}
	if _, err := formatByteRange(values); err == nil {
		t.Fatal("expected an error for a literal wider than the reservation")
	}
}

func TestByteRangePlaceholderLiteralWidth(t *testing.T) {
	if got := len(byteRangePlaceholderLiteral()); got != byteRangePlaceholderWidth {
		t.Fatalf("placeholder literal is %d bytes, want %d", got, byteRangePlaceholderWidth)
	}
}
