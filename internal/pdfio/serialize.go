package pdfio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/digitorus/pdf"
)

// SerializeValue writes a pdf.Value read from the original document back out
// as PDF object syntax. Indirect references (to any object other than
// ownerObjectID) are emitted as "id gen R"; everything else is serialized in
// place. Both the catalog rebuild and the page /Annots update use it to
// copy untouched entries from the original object graph.
func SerializeValue(w io.Writer, ownerObjectID uint32, value pdf.Value) {
	if ptr := value.GetPtr(); ptr.GetID() != 0 && ptr.GetID() != ownerObjectID {
		fmt.Fprintf(w, "%d %d R", ptr.GetID(), ptr.GetGen())
		return
	}

	switch value.Kind() {
	case pdf.String:
		fmt.Fprintf(w, "(%s)", value.RawString())
	case pdf.Null:
		fmt.Fprint(w, "null")
	case pdf.Bool:
		if value.Bool() {
			fmt.Fprint(w, "true")
		} else {
			fmt.Fprint(w, "false")
		}
	case pdf.Integer:
		fmt.Fprintf(w, "%d", value.Int64())
	case pdf.Real:
		fmt.Fprintf(w, "%f", value.Float64())
	case pdf.Name:
		fmt.Fprintf(w, "/%s", value.Name())
	case pdf.Dict:
		fmt.Fprint(w, "<<")
		for i, key := range value.Keys() {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "/%s ", key)
			SerializeValue(w, ownerObjectID, value.Key(key))
		}
		fmt.Fprint(w, ">>")
	case pdf.Array:
		fmt.Fprint(w, "[")
		for i := 0; i < value.Len(); i++ {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			SerializeValue(w, ownerObjectID, value.Index(i))
		}
		fmt.Fprint(w, "]")
	case pdf.Stream:
		panic("pdfio: stream cannot be a direct object")
	}
}

// SerializeValueBytes is a convenience wrapper returning the rendered bytes.
func SerializeValueBytes(ownerObjectID uint32, value pdf.Value) []byte {
	var buf bytes.Buffer
	SerializeValue(&buf, ownerObjectID, value)
	return buf.Bytes()
}
