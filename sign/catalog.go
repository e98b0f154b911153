package sign

import (
	"bytes"
	"fmt"

	"github.com/sigpress/pdfsigner/internal/pdfio"
)

// buildCatalog rebuilds the document catalog as a new indirect object,
// replacing /AcroForm (to add our field, and set /SigFlags), for certifying
// signatures adding /Perms /DocMDP, and registering the profile's
// /Extensions entry when one applies. All other root entries are copied
// through untouched via pdfio.SerializeValue.
func buildCatalog(reader *pdfio.Reader, fieldObjectIDs []uint32, sigFlags int, certLevel CertificationLevel, sigDictObjectID uint32, extensions string) []byte {
	root := reader.Root()
	rootID, _ := reader.RootRef()

	var buf bytes.Buffer
	buf.WriteString("<<\n  /Type /Catalog\n")

	overwritten := map[string]bool{"Type": true, "AcroForm": true}
	if certLevel != NONE {
		overwritten["Perms"] = true
	}
	if extensions != "" {
		overwritten["Extensions"] = true
	}

	buf.WriteString("  /AcroForm <<\n    /Fields [")
	for i, id := range fieldObjectIDs {
		if i > 0 {
			buf.WriteString(" ")
		}
		fmt.Fprintf(&buf, "%d 0 R", id)
	}
	buf.WriteString("]\n")
	fmt.Fprintf(&buf, "    /SigFlags %d\n", sigFlags)
	buf.WriteString("  >>\n")

	if certLevel != NONE {
		fmt.Fprintf(&buf, "  /Perms << /DocMDP %d 0 R >>\n", sigDictObjectID)
	}

	if extensions != "" {
		buf.WriteString(extensions)
	}

	for _, key := range root.Keys() {
		if overwritten[key] {
			continue
		}
		fmt.Fprintf(&buf, "/%s ", key)
		pdfio.SerializeValue(&buf, uint32(rootID), root.Key(key))
	}

	buf.WriteString(">>\n")
	return buf.Bytes()
}

// SigFlags bit values, Table 225 of ISO 32000-1.
const (
	sigFlagSignaturesExist = 1
	sigFlagAppendOnly      = 2
)
