package pdfio

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/digitorus/pdf"
)

func openTestReader(data []byte) (*Reader, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return Open(rdr, int64(len(data))), nil
}

// buildFormPDF assembles a document with an AcroForm holding one unsigned
// /Sig field named per fieldName.
func buildFormPDF(t *testing.T, fieldName string) []byte {
	return buildFieldPDF(t, "Sig", fieldName)
}

func buildFieldPDF(t *testing.T, fieldType, fieldName string) []byte {
	t.Helper()
	var buf bytes.Buffer
	offsets := make([]int64, 6)
	buf.WriteString("%PDF-1.7\n")
	add := func(id int, body string) {
		offsets[id] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}
	add(1, "<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R] /SigFlags 3 >> >>")
	add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	add(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [4 0 R] >>")
	add(4, fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /%s /T (%s) /Rect [10 20 110 70] /P 3 0 R /F 132 >>", fieldType, fieldName))

	xref := buf.Len()
	buf.WriteString("xref\n0 5\n0000000000 65535 f \n")
	for id := 1; id <= 4; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	buf.WriteString("trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n")
	fmt.Fprintf(&buf, "%d\n", xref)
	buf.WriteString("%%EOF\n")
	return buf.Bytes()
}

func TestExistingSignatureFields(t *testing.T) {
	rdr, err := openTestReader(buildFormPDF(t, "Signature1"))
	if err != nil {
		t.Fatalf("openTestReader: %v", err)
	}

	fields := rdr.ExistingSignatureFields()
	if len(fields) != 1 {
		t.Fatalf("found %d signature fields, want 1", len(fields))
	}
	f := fields[0]
	if f.Name != "Signature1" {
		t.Errorf("field name = %q, want Signature1", f.Name)
	}
	if f.HasValue {
		t.Error("unsigned field reported as signed")
	}
	if f.ObjectID != 4 {
		t.Errorf("field object id = %d, want 4", f.ObjectID)
	}
	if f.PageID != 3 {
		t.Errorf("field page id = %d, want 3", f.PageID)
	}
	if f.Rect != [4]float64{10, 20, 110, 70} {
		t.Errorf("field rect = %v", f.Rect)
	}
}

func TestNextFieldName(t *testing.T) {
	rdr, err := openTestReader(buildFormPDF(t, "Signature1"))
	if err != nil {
		t.Fatalf("openTestReader: %v", err)
	}
	if got := rdr.NextFieldName(); got != "Signature2" {
		t.Errorf("NextFieldName = %q, want Signature2 (Signature1 taken)", got)
	}

	rdr, err = openTestReader(buildFormPDF(t, "CustomField"))
	if err != nil {
		t.Fatalf("openTestReader: %v", err)
	}
	if got := rdr.NextFieldName(); got != "Signature1" {
		t.Errorf("NextFieldName = %q, want Signature1", got)
	}

	// Non-signature fields count against the name too.
	rdr, err = openTestReader(buildFieldPDF(t, "Tx", "Signature1"))
	if err != nil {
		t.Fatalf("openTestReader: %v", err)
	}
	if got := rdr.NextFieldName(); got != "Signature2" {
		t.Errorf("NextFieldName = %q, want Signature2 (text field holds Signature1)", got)
	}
}

func TestFindPage(t *testing.T) {
	rdr, err := openTestReader(buildFormPDF(t, "Signature1"))
	if err != nil {
		t.Fatalf("openTestReader: %v", err)
	}

	page, err := rdr.FindPage(1)
	if err != nil {
		t.Fatalf("FindPage(1): %v", err)
	}
	if page.Key("Type").Name() != "Page" {
		t.Errorf("FindPage(1) resolved a %q object", page.Key("Type").Name())
	}

	if _, err := rdr.FindPage(2); err == nil {
		t.Fatal("FindPage(2) on a one-page document did not fail")
	}
}

func TestXrefIsTable(t *testing.T) {
	rdr, err := openTestReader(buildFormPDF(t, "Signature1"))
	if err != nil {
		t.Fatalf("openTestReader: %v", err)
	}
	if !rdr.XrefIsTable() {
		t.Error("classic table xref not recognized")
	}
	if rdr.ItemCount() != 5 {
		t.Errorf("ItemCount = %d, want 5", rdr.ItemCount())
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		header string
		major  int
		minor  int
	}{
		{"1.4", "%PDF-1.4\n1 0 obj", 1, 4},
		{"1.7", "%PDF-1.7\n", 1, 7},
		{"2.0", "%PDF-2.0\n", 2, 0},
		{"no header", "not a pdf at all", 1, 7},
		{"truncated", "%PDF-", 1, 7},
		{"garbage version", "%PDF-x.y\n", 1, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor := ParseVersion(bytes.NewReader([]byte(tt.header)))
			if major != tt.major || minor != tt.minor {
				t.Errorf("ParseVersion = %d.%d, want %d.%d", major, minor, tt.major, tt.minor)
			}
		})
	}
}
