package sign

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// pdfString encodes text as a parenthesized PDF literal string. Text that
// fits Latin-1 is encoded with charmap.ISO8859_1 before escaping, which keeps
// /Reason, /Location, /ContactInfo and /Name byte-stable across PDF readers
// that don't treat them as UTF-16BE (the common case for PDFDocEncoding
// strings). Text containing any character outside Latin-1 is escaped as its
// raw UTF-8 bytes instead.
func pdfString(text string) string {
	encoded, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		// Characters with no Latin-1 representation: fall back to the raw
		// string. Escaping still makes it syntactically valid, just not
		// encoding-stable.
		encoded = text
	}

	encoded = strings.ReplaceAll(encoded, "\\", "\\\\")
	encoded = strings.ReplaceAll(encoded, ")", "\\)")
	encoded = strings.ReplaceAll(encoded, "(", "\\(")
	encoded = strings.ReplaceAll(encoded, "\r", "\\r")

	return "(" + encoded + ")"
}

// pdfDateTime renders a PDF date string: D:YYYYMMDDHHmmSS+HH'mm'.
func pdfDateTime(date time.Time) string {
	_, offsetSeconds := date.Zone()

	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}

	offset := time.Duration(offsetSeconds) * time.Second
	offsetHours := int(math.Floor(offset.Hours()))
	offsetMinutes := int(offset.Minutes()) - offsetHours*60

	dateString := "D:" + date.Format("20060102150405") + sign +
		fmt.Sprintf("%02d", offsetHours) + "'" + fmt.Sprintf("%02d", offsetMinutes) + "'"

	return pdfString(dateString)
}
