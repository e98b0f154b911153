package pdfio

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/mattetti/filebuffer"
)

func TestWriterAddObjectOffsets(t *testing.T) {
	store := filebuffer.New(nil)
	w := NewWriter(store, 5)

	id, contentStart, err := w.AddObject([]byte("<< /A 1 >>"))
	if err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	if id != 5 {
		t.Errorf("first allocated id = %d, want 5", id)
	}
	if want := int64(len("5 0 obj\n")); contentStart != want {
		t.Errorf("contentStart = %d, want %d", contentStart, want)
	}
	if w.NextObjectID() != 6 {
		t.Errorf("NextObjectID = %d, want 6", w.NextObjectID())
	}

	out := store.Buff.String()
	if !strings.HasPrefix(out, "5 0 obj\n<< /A 1 >>\nendobj\n") {
		t.Fatalf("output = %q", out)
	}
	if got := out[contentStart : contentStart+10]; got != "<< /A 1 >>" {
		t.Errorf("bytes at contentStart = %q, want the object body", got)
	}
}

func TestWriterCopyInputTracksOffset(t *testing.T) {
	original := []byte("%PDF-1.7\noriginal bytes\n%%EOF\n")
	store := filebuffer.New(nil)
	w := NewWriter(store, 1)

	if err := w.CopyInput(filebuffer.New(original)); err != nil {
		t.Fatalf("CopyInput: %v", err)
	}
	// Original plus the separating newline.
	if want := int64(len(original) + 1); w.Offset() != want {
		t.Errorf("Offset = %d, want %d", w.Offset(), want)
	}
}

func TestWriteXrefGroupsConsecutiveRuns(t *testing.T) {
	store := filebuffer.New(nil)
	w := NewWriter(store, 5)

	// Update object 1, add objects 5 and 6: expect two subsections, "1 1"
	// and "5 2".
	if _, err := w.UpdateObject(1, []byte("<< /Updated true >>")); err != nil {
		t.Fatalf("UpdateObject: %v", err)
	}
	if _, _, err := w.AddObject([]byte("<< /New 1 >>")); err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	if _, _, err := w.AddObject([]byte("<< /New 2 >>")); err != nil {
		t.Fatalf("AddObject: %v", err)
	}

	xrefStart, err := w.WriteXref()
	if err != nil {
		t.Fatalf("WriteXref: %v", err)
	}

	out := store.Buff.String()
	xref := out[xrefStart:]
	if !strings.HasPrefix(xref, "xref\n1 1\n") {
		t.Fatalf("xref = %q, want it to start with subsection \"1 1\"", xref)
	}
	if !strings.Contains(xref, "\n5 2\n") {
		t.Fatalf("xref = %q, want a \"5 2\" subsection", xref)
	}

	// Every entry line is exactly 20 bytes: 10-digit offset, 5-digit
	// generation, type, and the two-byte line end.
	for _, line := range strings.Split(xref, "\n") {
		if strings.HasSuffix(line, " n\r") {
			if len(line)+1 != 20 {
				t.Errorf("xref entry %q is %d bytes, want 20", line, len(line)+1)
			}
		}
	}
}

func TestWriteTrailerAndStartXref(t *testing.T) {
	store := filebuffer.New(nil)
	w := NewWriter(store, 7)

	if err := w.WriteTrailer(1, 1234, 7, "", ""); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}
	if err := w.WriteStartXref(5678); err != nil {
		t.Fatalf("WriteStartXref: %v", err)
	}

	out := store.Buff.String()
	for _, want := range []string{
		"trailer\n",
		"/Size 7\n",
		"/Root 1 0 R\n",
		"/Prev 1234\n",
		"startxref\n5678\n%%EOF\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("trailer output missing %q in %q", want, out)
		}
	}
}

func TestWriteTrailerOmitsPrevAndIDWhenAbsent(t *testing.T) {
	store := filebuffer.New(nil)
	w := NewWriter(store, 2)

	if err := w.WriteTrailer(1, 0, 2, "", ""); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}
	out := store.Buff.String()
	if strings.Contains(out, "/Prev") {
		t.Error("trailer carries /Prev for a document with no prior xref")
	}
	if strings.Contains(out, "/ID") {
		t.Error("trailer carries /ID although none was supplied")
	}
}

func TestSerializeValueRoundTrips(t *testing.T) {
	// Build a real document so SerializeValue operates on genuine pdf.Values.
	var buf bytes.Buffer
	offsets := make([]int64, 4)
	buf.WriteString("%PDF-1.7\n")
	add := func(id int, body string) {
		offsets[id] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}
	add(1, "<< /Type /Catalog /Pages 2 0 R /Marked true /Version /1.7 /Count 3 >>")
	add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	add(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	xref := buf.Len()
	buf.WriteString("xref\n0 4\n0000000000 65535 f \n")
	for id := 1; id <= 3; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n")
	fmt.Fprintf(&buf, "%d\n", xref)
	buf.WriteString("%%EOF\n")

	data := buf.Bytes()
	rdr, err := openTestReader(data)
	if err != nil {
		t.Fatalf("parsing test document: %v", err)
	}

	root := rdr.Root()
	rootID, _ := rdr.RootRef()

	tests := []struct {
		key  string
		want string
	}{
		{"Pages", "2 0 R"},
		{"Marked", "true"},
		{"Version", "/1.7"},
		{"Count", "3"},
	}
	for _, tt := range tests {
		if got := string(SerializeValueBytes(uint32(rootID), root.Key(tt.key))); got != tt.want {
			t.Errorf("SerializeValue(%s) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
