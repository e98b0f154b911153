package sign

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSerializePlaceholderOffsets(t *testing.T) {
	dict := newSignatureDictionary(CMS, NONE, nil, SignatureInfo{})
	const reserve = 32

	data, byteRangeOff, contentsOff := dict.serialize(reserve, "")

	if data[byteRangeOff] != '[' {
		t.Errorf("byte at byteRangeOff = %q, want '['", data[byteRangeOff])
	}
	if data[contentsOff-1] != '<' {
		t.Errorf("byte before contentsOff = %q, want '<'", data[contentsOff-1])
	}
	body := data[contentsOff : contentsOff+2*reserve]
	for i, b := range body {
		if b != '0' {
			t.Fatalf("contents pad byte %d = %q, want '0'", i, b)
		}
	}
	if data[contentsOff+2*reserve] != '>' {
		t.Errorf("byte after contents body = %q, want '>'", data[contentsOff+2*reserve])
	}
}

func TestSerializeSubFilters(t *testing.T) {
	tests := []struct {
		name string
		dict *SignatureDictionary
		want string
	}{
		{"cms", newSignatureDictionary(CMS, NONE, nil, SignatureInfo{}), "/SubFilter /adbe.pkcs7.detached"},
		{"cades", newSignatureDictionary(CAdES, NONE, nil, SignatureInfo{}), "/SubFilter /ETSI.CAdES.detached"},
		{"timestamp", newTimestampDictionary(), "/SubFilter /ETSI.RFC3161"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _, _ := tt.dict.serialize(16, "")
			if !bytes.Contains(data, []byte(tt.want)) {
				t.Errorf("serialized dictionary missing %q", tt.want)
			}
		})
	}
}

func TestSerializeInfoFields(t *testing.T) {
	date := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	dict := newSignatureDictionary(CMS, NONE, nil, SignatureInfo{
		Name:     "Jane Signer",
		Location: "Utrecht",
		Reason:   "Approval",
		Date:     date,
	})
	data, _, _ := dict.serialize(16, "")

	for _, want := range []string{
		"/Name (Jane Signer)",
		"/Location (Utrecht)",
		"/Reason (Approval)",
		"/M (D:20260314092653+00'00')",
	} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("serialized dictionary missing %q", want)
		}
	}
}

func TestReferencesDocMDPPrecedesFieldMDP(t *testing.T) {
	dict := newSignatureDictionary(CMS, FormFilling, &FieldLock{Action: "All"}, SignatureInfo{})
	dict.CatalogObjectID = 1
	data, _, _ := dict.serialize(16, "")
	s := string(data)

	docMDP := strings.Index(s, "/TransformMethod /DocMDP")
	fieldMDP := strings.Index(s, "/TransformMethod /FieldMDP")
	if docMDP < 0 || fieldMDP < 0 {
		t.Fatal("expected both DocMDP and FieldMDP references")
	}
	if docMDP > fieldMDP {
		t.Error("DocMDP reference must precede FieldMDP")
	}
	if !strings.Contains(s, "/P 2") {
		t.Error("DocMDP reference missing /P 2")
	}
	if got := strings.Count(s, "/Data 1 0 R"); got != 2 {
		t.Errorf("references carry %d /Data entries, want one per SigRef", got)
	}
}

func TestLegacyDigestGatedOnVersion(t *testing.T) {
	old := newSignatureDictionary(CMS, NoChanges, &FieldLock{Action: "All"}, SignatureInfo{})
	old.CatalogObjectID = 1
	old.PDFMinor = 5
	data, _, _ := old.serialize(16, "")
	for _, want := range []string{"/DigestValue (aa)", "/DigestLocation [0 0]", "/DigestMethod /MD5"} {
		if got := bytes.Count(data, []byte(want)); got != 2 {
			t.Errorf("PDF 1.5 document carries %d %q entries, want 2 (DocMDP and FieldMDP)", got, want)
		}
	}

	current := newSignatureDictionary(CMS, NoChanges, &FieldLock{Action: "All"}, SignatureInfo{})
	current.CatalogObjectID = 1
	data, _, _ = current.serialize(16, "")
	for _, forbidden := range []string{"/DigestValue", "/DigestLocation", "/DigestMethod"} {
		if bytes.Contains(data, []byte(forbidden)) {
			t.Errorf("PDF 1.7 document must not carry the legacy %s entry", forbidden)
		}
	}
	if got := bytes.Count(data, []byte("/Data 1 0 R")); got != 2 {
		t.Errorf("references carry %d /Data entries, want 2 regardless of version", got)
	}
}

func TestTimestampDictionaryOmitsInfo(t *testing.T) {
	dict := newTimestampDictionary()
	data, _, _ := dict.serialize(16, "")

	if !bytes.Contains(data, []byte("/Type /DocTimeStamp")) {
		t.Error("timestamp dictionary missing /Type /DocTimeStamp")
	}
	for _, forbidden := range []string{"/Reason", "/Location", "/Name", "/M (", "/Reference"} {
		if bytes.Contains(data, []byte(forbidden)) {
			t.Errorf("timestamp dictionary must not contain %q", forbidden)
		}
	}
}

func TestDeveloperExtension(t *testing.T) {
	if got := developerExtension(CMS, false); got != "" {
		t.Errorf("CMS needs no extension, got %q", got)
	}
	if got := developerExtension(CAdES, false); !strings.Contains(got, "/ExtensionLevel 2") {
		t.Errorf("CAdES extension = %q, want level 2", got)
	}
	if got := developerExtension(CMS, true); !strings.Contains(got, "/ExtensionLevel 5") {
		t.Errorf("timestamp extension = %q, want level 5", got)
	}
}
