package sign

import (
	"bytes"
	"fmt"
)

// SignatureDictionary is the in-progress /Sig or /DocTimeStamp object.
// It is mutated during preClose (SignatureEvent callbacks, reference
// construction) and serialized once, with /ByteRange and /Contents written
// as placeholder literals whose final bytes are filled in later.
//
// A mutable struct rather than inline string building so SignatureEvent and
// ExternalSignatureContainer can observe and alter it before serialization.
type SignatureDictionary struct {
	IsDocTimeStamp bool

	Filter    string // /Adobe.PPKLite
	SubFilter string // adbe.pkcs7.detached, ETSI.CAdES.detached, ETSI.RFC3161

	Info SignatureInfo

	CertificationLevel CertificationLevel
	FieldLock          *FieldLock

	// PDFMajor/PDFMinor gate the legacy DigestMethod/DigestValue/DigestLocation
	// triad on SigRef dictionaries for documents older than PDF 1.6.
	PDFMajor, PDFMinor int

	// CatalogObjectID is the document catalog's object id, referenced as
	// /Data from every SigRef dictionary.
	CatalogObjectID uint32
}

const (
	filterAdobePPKLite = "Adobe.PPKLite"
	subFilterCMS       = "adbe.pkcs7.detached"
	subFilterCAdES     = "ETSI.CAdES.detached"
	subFilterTimestamp = "ETSI.RFC3161"
)

// newSignatureDictionary builds the default dictionary for a fresh detached
// signature of the given standard.
func newSignatureDictionary(standard Standard, level CertificationLevel, lock *FieldLock, info SignatureInfo) *SignatureDictionary {
	subFilter := subFilterCMS
	if standard == CAdES {
		subFilter = subFilterCAdES
	}
	return &SignatureDictionary{
		Filter:             filterAdobePPKLite,
		SubFilter:          subFilter,
		Info:               info,
		CertificationLevel: level,
		FieldLock:          lock,
		PDFMajor:           1,
		PDFMinor:           7,
	}
}

// newTimestampDictionary builds a standalone /DocTimeStamp dictionary. It
// carries no /Reason, /Location, /ContactInfo or /M; the time attestation
// lives inside the RFC 3161 token itself.
func newTimestampDictionary() *SignatureDictionary {
	return &SignatureDictionary{
		IsDocTimeStamp: true,
		Filter:         filterAdobePPKLite,
		SubFilter:      subFilterTimestamp,
		PDFMajor:       1,
		PDFMinor:       7,
	}
}

// legacyDigestRequired reports whether the SigRef dictionaries for d need
// the PDF-1.5-and-earlier /DigestValue /DigestLocation /DigestMethod triad.
// Both DocMDP and FieldMDP references gate on the same version check.
func (d *SignatureDictionary) legacyDigestRequired() bool {
	return d.PDFMajor < 1 || (d.PDFMajor == 1 && d.PDFMinor < 6)
}

// serialize renders the dictionary to PDF object syntax, inserting an
// 80-byte /ByteRange placeholder and a hex /Contents placeholder of
// 2*contentsReserve+2 bytes. Returns the bytes and the buffer-relative
// offsets of both placeholders: the /ByteRange offset points at its "[",
// the /Contents offset just past its "<".
func (d *SignatureDictionary) serialize(contentsReserve int64, propBuild string) (data []byte, byteRangeValueOffset, contentsValueOffset int64) {
	var buf bytes.Buffer

	buf.WriteString("<<\n")
	if d.IsDocTimeStamp {
		buf.WriteString(" /Type /DocTimeStamp\n")
	} else {
		buf.WriteString(" /Type /Sig\n")
	}
	fmt.Fprintf(&buf, " /Filter /%s\n", d.Filter)
	fmt.Fprintf(&buf, " /SubFilter /%s\n", d.SubFilter)

	if propBuild != "" {
		buf.WriteString(propBuild)
	}

	buf.WriteString(" /ByteRange ")
	byteRangeValueOffset = int64(buf.Len())
	buf.WriteString(byteRangePlaceholderLiteral())
	buf.WriteString("\n")

	buf.WriteString(" /Contents<")
	contentsValueOffset = int64(buf.Len())
	buf.Write(bytes.Repeat([]byte("0"), int(2*contentsReserve)))
	buf.WriteString(">\n")

	if !d.IsDocTimeStamp {
		d.writeReferences(&buf)

		if d.Info.Name != "" {
			fmt.Fprintf(&buf, " /Name %s\n", pdfString(d.Info.Name))
		}
		if d.Info.Location != "" {
			fmt.Fprintf(&buf, " /Location %s\n", pdfString(d.Info.Location))
		}
		if d.Info.Reason != "" {
			fmt.Fprintf(&buf, " /Reason %s\n", pdfString(d.Info.Reason))
		}
		if d.Info.ContactInfo != "" {
			fmt.Fprintf(&buf, " /ContactInfo %s\n", pdfString(d.Info.ContactInfo))
		}
		if !d.Info.Date.IsZero() {
			fmt.Fprintf(&buf, " /M %s\n", pdfDateTime(d.Info.Date))
		}
	}

	buf.WriteString(">>\n")

	return buf.Bytes(), byteRangeValueOffset, contentsValueOffset
}

// writeReferences assembles the /Reference array: DocMDP first (if the
// signature certifies the document), then FieldMDP (if a lock is in effect).
func (d *SignatureDictionary) writeReferences(buf *bytes.Buffer) {
	if d.CertificationLevel == NONE && d.FieldLock == nil {
		return
	}

	buf.WriteString(" /Reference [\n")

	if d.CertificationLevel != NONE {
		buf.WriteString("  << /Type /SigRef\n")
		buf.WriteString("     /TransformMethod /DocMDP\n")
		buf.WriteString("     /TransformParams <<\n")
		buf.WriteString("       /Type /TransformParams\n")
		fmt.Fprintf(buf, "       /P %d\n", int(d.CertificationLevel))
		buf.WriteString("       /V /1.2\n")
		buf.WriteString("     >>\n")
		d.writeSigRefData(buf)
		buf.WriteString("  >>\n")
	}

	if d.FieldLock != nil {
		buf.WriteString("  << /Type /SigRef\n")
		buf.WriteString("     /TransformMethod /FieldMDP\n")
		buf.WriteString("     /TransformParams <<\n")
		buf.WriteString("       /Type /TransformParams\n")
		action := d.FieldLock.Action
		if action == "" {
			action = "All"
		}
		fmt.Fprintf(buf, "       /Action /%s\n", action)
		if len(d.FieldLock.Fields) > 0 {
			buf.WriteString("       /Fields [")
			for i, f := range d.FieldLock.Fields {
				if i > 0 {
					buf.WriteString(" ")
				}
				buf.WriteString(pdfString(f))
			}
			buf.WriteString("]\n")
		}
		buf.WriteString("       /V /1.2\n")
		buf.WriteString("     >>\n")
		d.writeSigRefData(buf)
		buf.WriteString("  >>\n")
	}

	buf.WriteString(" ]\n")
}

// writeSigRefData finishes a SigRef dictionary: the /Data entry pointing at
// the object the transform applies to (the catalog), and for documents
// older than PDF 1.6 the legacy digest triad. /DigestValue holds a
// placeholder string and /DigestLocation a zero span; PDF 1.5-era
// consumers recompute both during validation.
func (d *SignatureDictionary) writeSigRefData(buf *bytes.Buffer) {
	if d.CatalogObjectID != 0 {
		fmt.Fprintf(buf, "     /Data %d 0 R\n", d.CatalogObjectID)
	}
	if d.legacyDigestRequired() {
		buf.WriteString("     /DigestValue (aa)\n")
		buf.WriteString("     /DigestLocation [0 0]\n")
		buf.WriteString("     /DigestMethod /MD5\n")
	}
}

// propBuild returns the Prop_Build diagnostic dictionary embedded in every
// signature, recording the producing application's identity.
func propBuild() string {
	return " /Prop_Build <<\n   /App << /Name /PDFSigner >>\n >>\n"
}

// developerExtension returns the catalog /Extensions entry the chosen
// profile requires: ESIC 1.7 extension level 2 for CAdES, level 5 for
// document timestamps. Empty string when none is needed.
func developerExtension(standard Standard, isTimestamp bool) string {
	switch {
	case isTimestamp:
		return " /Extensions << /ESIC << /BaseVersion /1.7 /ExtensionLevel 5 >> >>\n"
	case standard == CAdES:
		return " /Extensions << /ESIC << /BaseVersion /1.7 /ExtensionLevel 2 >> >>\n"
	default:
		return ""
	}
}
