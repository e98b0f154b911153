package sign

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/digitorus/pdf"
	"github.com/sigpress/pdfsigner/internal/pdfio"
)

// Annotation flags, Table 165 of ISO 32000-1.
const (
	annotFlagPrint  = 1 << 2
	annotFlagLocked = 1 << 7
)

// fieldBindResult carries what preClose needs back from the field binder to
// finish building the catalog and (if visible) the page update.
type fieldBindResult struct {
	pageObjectID uint32 // 0 if the signature is invisible / field pre-existed without rebinding a page
}

// bindField locates or creates the signature form field and attaches a widget
// annotation. Returns the serialized widget/field object, which doubles as the
// AcroForm /Fields entry and the /V target, and (if visible) the target page
// whose /Annots preClose then updates.
func bindField(reader *pdfio.Reader, fieldName string, app Appearance, sigObjectID, apObjectID uint32, existing *pdfio.SignatureField) (*bytes.Buffer, fieldBindResult, error) {
	if strings.Contains(fieldName, ".") {
		return nil, fieldBindResult{}, ErrFieldNameContainsDot
	}

	if existing != nil && existing.HasValue {
		return nil, fieldBindResult{}, ErrFieldAlreadySigned
	}

	var buf bytes.Buffer
	buf.WriteString("<<\n  /Type /Annot\n  /Subtype /Widget\n")

	visible := app.Visible
	var res fieldBindResult

	if existing != nil {
		// Reuse the pre-existing widget's placement; the new generation of
		// the field keeps its page and rectangle.
		fmt.Fprintf(&buf, "  /Rect [%f %f %f %f]\n", existing.Rect[0], existing.Rect[1], existing.Rect[2], existing.Rect[3])
		if existing.PageID != 0 {
			fmt.Fprintf(&buf, "  /P %d 0 R\n", existing.PageID)
		}
	} else {
		if visible {
			fmt.Fprintf(&buf, "  /Rect [%f %f %f %f]\n", app.LowerLeftX, app.LowerLeftY, app.UpperRightX, app.UpperRightY)
		} else {
			buf.WriteString("  /Rect [0 0 0 0]\n")
		}

		page, err := reader.FindPage(pageOrDefault(app.Page))
		if err != nil {
			if visible {
				return nil, fieldBindResult{}, fmt.Errorf("sign: locate page for visible signature: %w", err)
			}
		} else {
			pagePtr := page.GetPtr()
			fmt.Fprintf(&buf, "  /P %d 0 R\n", pagePtr.GetID())
			if visible {
				res.pageObjectID = pagePtr.GetID()
			}
		}
	}

	if apObjectID != 0 {
		fmt.Fprintf(&buf, "  /AP << /N %d 0 R >>\n", apObjectID)
	}
	fmt.Fprintf(&buf, "  /F %d\n", annotFlagPrint|annotFlagLocked)
	buf.WriteString("  /FT /Sig\n")
	fmt.Fprintf(&buf, "  /T %s\n", pdfString(fieldName))
	fmt.Fprintf(&buf, "  /V %d 0 R\n", sigObjectID)
	buf.WriteString(">>\n")

	return &buf, res, nil
}

// appearanceStreamObject renders the externally built appearance stream as a
// form XObject the widget's /AP /N can reference. The content itself comes
// from the Appearance collaborator; the core only frames it.
func appearanceStreamObject(app Appearance) []byte {
	var buf bytes.Buffer
	width := app.UpperRightX - app.LowerLeftX
	height := app.UpperRightY - app.LowerLeftY
	buf.WriteString("<<\n  /Type /XObject\n  /Subtype /Form\n")
	fmt.Fprintf(&buf, "  /BBox [0 0 %f %f]\n", width, height)
	fmt.Fprintf(&buf, "  /Length %d\n", len(app.Stream))
	buf.WriteString(">>\nstream\n")
	buf.Write(app.Stream)
	buf.WriteString("\nendstream")
	return buf.Bytes()
}

func pageOrDefault(p uint32) uint32 {
	if p == 0 {
		return 1
	}
	return p
}

// incrementalPageUpdate rebuilds a page object adding widgetObjectID to its
// /Annots, copying every other key through untouched.
func incrementalPageUpdate(page pdf.Value, widgetObjectID uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("<<\n")

	pageID := page.GetPtr().GetID()

	for _, key := range page.Keys() {
		switch key {
		case "Parent":
			ptr := page.Key(key).GetPtr()
			fmt.Fprintf(&buf, "  /%s %d 0 R\n", key, ptr.GetID())
		case "Contents":
			v := page.Key(key)
			if v.Kind() == pdf.Array {
				buf.WriteString("  /Contents [")
				for i := 0; i < v.Len(); i++ {
					fmt.Fprintf(&buf, " %d 0 R", v.Index(i).GetPtr().GetID())
				}
				buf.WriteString(" ]\n")
			} else {
				fmt.Fprintf(&buf, "  /%s %d 0 R\n", key, v.GetPtr().GetID())
			}
		case "Annots":
			buf.WriteString("  /Annots [\n")
			annots := page.Key(key)
			for i := 0; i < annots.Len(); i++ {
				fmt.Fprintf(&buf, "    %d 0 R\n", annots.Index(i).GetPtr().GetID())
			}
			fmt.Fprintf(&buf, "    %d 0 R\n", widgetObjectID)
			buf.WriteString("  ]\n")
		default:
			fmt.Fprintf(&buf, "  /%s ", key)
			pdfio.SerializeValue(&buf, pageID, page.Key(key))
			buf.WriteString("\n")
		}
	}

	if page.Key("Annots").IsNull() {
		fmt.Fprintf(&buf, "  /Annots [%d 0 R]\n", widgetObjectID)
	}

	buf.WriteString(">>\n")
	return buf.Bytes()
}

// validateExistingField rejects binding to a field that already carries a
// signature value.
func validateExistingField(f *pdfio.SignatureField) error {
	if f == nil {
		return nil
	}
	if f.HasValue {
		return ErrFieldAlreadySigned
	}
	return nil
}
