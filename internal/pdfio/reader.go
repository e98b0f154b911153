// Package pdfio is the minimal PDF substrate the signer needs: enough of a
// reader to resolve the AcroForm, page tree and trailer, and an
// incremental-update writer that emits placeholder literals at recorded
// byte offsets. It deliberately does not attempt to be a general PDF object
// model: no parsing of content streams, no encryption, no
// object-stream/xref-stream support.
package pdfio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/digitorus/pdf"
)

// Reader wraps *pdf.Reader with the handful of lookups the signer needs,
// so the field binder and the dictionary/catalog builders don't each
// re-walk the trailer themselves.
type Reader struct {
	PDF  *pdf.Reader
	Size int64
}

// Open wraps an already-constructed *pdf.Reader (the caller is responsible
// for choosing how to open the source file - os.File, in-memory, etc).
func Open(r *pdf.Reader, size int64) *Reader {
	return &Reader{PDF: r, Size: size}
}

// Root returns the document catalog.
func (r *Reader) Root() pdf.Value {
	return r.PDF.Trailer().Key("Root")
}

// RootRef returns the catalog's own object id/generation.
func (r *Reader) RootRef() (id, gen int64) {
	ptr := r.Root().GetPtr()
	return int64(ptr.GetID()), int64(ptr.GetGen())
}

// AcroForm returns the /AcroForm dictionary, or the zero Value if absent.
func (r *Reader) AcroForm() pdf.Value {
	return r.Root().Key("AcroForm")
}

// GetObject resolves an arbitrary indirect object by id, for callers that
// already have an object id in hand - e.g. from SignatureField.ObjectID -
// rather than a position in the object graph.
func (r *Reader) GetObject(id uint32) (pdf.Value, error) {
	return r.PDF.GetObject(id)
}

// XrefIsTable reports whether the document's final cross-reference section
// is a classic table. pdfio only supports incrementally updating table-xref
// documents.
func (r *Reader) XrefIsTable() bool {
	return r.PDF.XrefInformation.Type == "table"
}

// XrefStartPos is the byte offset of the existing, most-recent xref section
// - the value the new incremental update's trailer /Prev must point at.
func (r *Reader) XrefStartPos() int64 {
	return r.PDF.XrefInformation.StartPos
}

// ItemCount is the highest object id + 1 used by the existing xref's /Size.
func (r *Reader) ItemCount() int64 {
	return r.PDF.XrefInformation.ItemCount
}

// SignatureField describes an existing /Sig form field: its object id, /T
// name, whether /V is already set, and the widget's placement (reused when
// re-binding the field rather than inventing a fresh rectangle).
type SignatureField struct {
	ObjectID uint32
	Name     string
	HasValue bool
	PageID   uint32
	Rect     [4]float64

	// Lock mirrors the field's /Lock dictionary when present; a field that
	// ships its own lock overrides any caller-supplied one.
	HasLock    bool
	LockAction string
	LockFields []string
}

// ExistingSignatureFields walks /AcroForm /Fields looking for /FT /Sig
// entries, reporting each field's /T name, whether /V is already set, and
// its widget placement.
func (r *Reader) ExistingSignatureFields() []SignatureField {
	var out []SignatureField
	acroForm := r.AcroForm()
	if acroForm.IsNull() {
		return out
	}
	fields := acroForm.Key("Fields")
	if fields.IsNull() {
		return out
	}
	for i := 0; i < fields.Len(); i++ {
		field := fields.Index(i)
		if field.Key("FT").Name() != "Sig" {
			continue
		}
		sf := SignatureField{
			ObjectID: field.GetPtr().GetID(),
			Name:     field.Key("T").RawString(),
			HasValue: !field.Key("V").IsNull(),
		}
		if page := field.Key("P"); !page.IsNull() {
			sf.PageID = page.GetPtr().GetID()
		}
		if rect := field.Key("Rect"); rect.Kind() == pdf.Array && rect.Len() == 4 {
			for j := 0; j < 4; j++ {
				sf.Rect[j] = rect.Index(j).Float64()
			}
		}
		if lock := field.Key("Lock"); !lock.IsNull() {
			sf.HasLock = true
			sf.LockAction = lock.Key("Action").Name()
			if names := lock.Key("Fields"); !names.IsNull() {
				for j := 0; j < names.Len(); j++ {
					sf.LockFields = append(sf.LockFields, names.Index(j).RawString())
				}
			}
		}
		out = append(out, sf)
	}
	return out
}

// FormFieldType returns the /FT name of the AcroForm field called name, and
// whether such a field exists at all - signature or not. Callers use it to
// reject binding a signature to a same-named text or button field.
func (r *Reader) FormFieldType(name string) (string, bool) {
	acroForm := r.AcroForm()
	if acroForm.IsNull() {
		return "", false
	}
	fields := acroForm.Key("Fields")
	for i := 0; i < fields.Len(); i++ {
		field := fields.Index(i)
		if field.Key("T").RawString() == name {
			return field.Key("FT").Name(), true
		}
	}
	return "", false
}

// NextFieldName returns "Signature<k>" for the smallest positive k not
// already used by any existing field name, signature or otherwise.
func (r *Reader) NextFieldName() string {
	used := make(map[string]bool)
	if acroForm := r.AcroForm(); !acroForm.IsNull() {
		fields := acroForm.Key("Fields")
		for i := 0; i < fields.Len(); i++ {
			used[fields.Index(i).Key("T").RawString()] = true
		}
	}
	for k := 1; ; k++ {
		name := "Signature" + strconv.Itoa(k)
		if !used[name] {
			return name
		}
	}
}

// FindPage returns the pageNumber'th page (1-indexed) in document order.
func (r *Reader) FindPage(pageNumber uint32) (pdf.Value, error) {
	page, remaining, err := findPageRec(r.Root().Key("Pages"), pageNumber)
	if err != nil {
		return pdf.Value{}, err
	}
	if remaining != 0 {
		return pdf.Value{}, fmt.Errorf("pdfio: page %d not found", pageNumber)
	}
	return page, nil
}

func findPageRec(node pdf.Value, remaining uint32) (pdf.Value, uint32, error) {
	switch node.Key("Type").Name() {
	case "Pages":
		kids := node.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			page, rem, err := findPageRec(kids.Index(i), remaining)
			if err == nil && rem == 0 {
				return page, 0, nil
			}
			remaining = rem
		}
		return pdf.Value{}, remaining, fmt.Errorf("pdfio: page not found")
	case "Page":
		if remaining == 1 {
			return node, 0, nil
		}
		return pdf.Value{}, remaining - 1, nil
	default:
		return pdf.Value{}, remaining, fmt.Errorf("pdfio: page not found")
	}
}

// ParseVersion reads the %PDF-M.N header at the start of r. A document whose
// header can't be read falls back to 1.7, the version the signature machinery
// otherwise assumes.
func ParseVersion(r io.ReaderAt) (major, minor int) {
	major, minor = 1, 7

	var buf [16]byte
	n, _ := r.ReadAt(buf[:], 0)
	header := string(buf[:n])
	if !strings.HasPrefix(header, "%PDF-") {
		return major, minor
	}
	rest := header[len("%PDF-"):]
	dot := strings.IndexByte(rest, '.')
	if dot < 1 {
		return major, minor
	}
	end := dot + 1
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	m, err1 := strconv.Atoi(rest[:dot])
	n2, err2 := strconv.Atoi(rest[dot+1 : end])
	if err1 != nil || err2 != nil {
		return major, minor
	}
	return m, n2
}

// CopyOriginal copies the full byte range of the original document into w,
// rewinding src to offset 0 first.
func CopyOriginal(src io.ReadSeeker, w io.Writer) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := io.Copy(w, src)
	return err
}
