package pdfio

import (
	"fmt"
	"sort"
)

// WriteXref emits a classic cross-reference table covering every object
// added or updated since construction, grouped into maximal runs of
// consecutive object ids (each run gets its own "first count" subsection
// header, as ISO 32000 7.5.4 permits multiple subsections per xref section).
// Returns the offset the xref section itself starts at, for the trailer's
// startxref pointer.
func (w *Writer) WriteXref() (xrefStart int64, err error) {
	all := append(append([]xrefEntry(nil), w.updEntries...), w.newEntries...)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	xrefStart = w.Offset()
	if _, err = w.Write([]byte("xref\n")); err != nil {
		return 0, err
	}

	for i := 0; i < len(all); {
		j := i + 1
		for j < len(all) && all[j].ID == all[j-1].ID+1 {
			j++
		}
		run := all[i:j]
		if _, err = fmt.Fprintf(w, "%d %d\n", run[0].ID, len(run)); err != nil {
			return 0, err
		}
		for _, e := range run {
			if _, err = fmt.Fprintf(w, "%010d 00000 n\r\n", e.Offset); err != nil {
				return 0, err
			}
		}
		i = j
	}

	return xrefStart, nil
}

// WriteTrailer emits a fresh, minimal trailer dictionary for the
// incremental update. Per ISO 32000 7.5.5 it need only carry /Size, /Root
// and /Prev, plus /ID when the document already had one.
func (w *Writer) WriteTrailer(rootObjectID uint32, prevXrefStart int64, size uint32, id1, id2 string) error {
	if _, err := w.Write([]byte("trailer\n<<\n")); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  /Size %d\n", size); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  /Root %d 0 R\n", rootObjectID); err != nil {
		return err
	}
	if prevXrefStart > 0 {
		if _, err := fmt.Fprintf(w, "  /Prev %d\n", prevXrefStart); err != nil {
			return err
		}
	}
	if id1 != "" && id2 != "" {
		if _, err := fmt.Fprintf(w, "  /ID [<%s><%s>]\n", id1, id2); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte(">>\n")); err != nil {
		return err
	}
	return nil
}

// WriteStartXref writes the trailing "startxref\n<pos>\n%%EOF\n" footer.
func (w *Writer) WriteStartXref(xrefStart int64) error {
	if _, err := fmt.Fprintf(w, "startxref\n%d\n", xrefStart); err != nil {
		return err
	}
	_, err := w.Write([]byte("%%EOF\n"))
	return err
}
