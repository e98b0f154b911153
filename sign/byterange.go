package sign

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// byteRangePlaceholderWidth is the fixed size, in bytes, reserved for the
// /ByteRange array literal: "[0 1234567890 1234567890 1234567890]" plus
// trailing space padding. Four 64-bit offsets always fit.
const byteRangePlaceholderWidth = 80

// exclusionWindow is a half-open [Offset, Offset+Length) span of the output
// that must not be hashed: the /Contents value bytes, delimiters included.
type exclusionWindow struct {
	Offset int64
	Length int64
}

// computeByteRange turns the exclusion windows (normally just the /Contents
// placeholder, delimiters included) and the final file length into the
// flattened [a0, l0, a1, l1, ...] sequence covering everything else. Fails
// with ErrOverlappingRanges if any two windows overlap.
func computeByteRange(windows []exclusionWindow, fileLength int64) ([]int64, error) {
	sorted := append([]exclusionWindow(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for i := 1; i < len(sorted); i++ {
		prevEnd := sorted[i-1].Offset + sorted[i-1].Length
		if sorted[i].Offset < prevEnd {
			return nil, ErrOverlappingRanges
		}
	}

	out := make([]int64, 0, 2+2*len(sorted))
	cursor := int64(0)
	for _, w := range sorted {
		out = append(out, cursor, w.Offset-cursor)
		cursor = w.Offset + w.Length
	}
	out = append(out, cursor, fileLength-cursor)

	// out is already [a0, l0, a1, l1, ...], the exact shape the /ByteRange
	// literal takes.
	return out, nil
}

// formatByteRange renders the byte range array as the literal PDF /ByteRange
// entry, right-padded with spaces to exactly byteRangePlaceholderWidth bytes.
func formatByteRange(values []int64) (string, error) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	literal := "[" + strings.Join(parts, " ") + "]"

	if len(literal) > byteRangePlaceholderWidth {
		return "", fmt.Errorf("sign: /ByteRange literal %q exceeds %d reserved bytes", literal, byteRangePlaceholderWidth)
	}
	return literal + strings.Repeat(" ", byteRangePlaceholderWidth-len(literal)), nil
}

// byteRangePlaceholderLiteral is the 80-byte space-padded placeholder written
// during preClose, before the final offsets are known.
func byteRangePlaceholderLiteral() string {
	const stub = "[0 ********** ********** **********]"
	return stub + strings.Repeat(" ", byteRangePlaceholderWidth-len(stub))
}
