package sign

import "time"

// CertificationLevel controls the DocMDP permission a certifying signature
// grants. NONE produces an approval signature carrying no DocMDP reference.
type CertificationLevel int

const (
	NONE CertificationLevel = iota
	NoChanges
	FormFilling
	FormFillingAndAnnotations
)

// Standard selects the authenticated-attribute profile used when assembling
// a CMS signature container.
type Standard int

const (
	// CMS produces a plain PKCS#7 detached signature (/SubFilter adbe.pkcs7.detached).
	CMS Standard = iota
	// CAdES adds the ESS SigningCertificateV2 authenticated attribute and
	// writes /SubFilter ETSI.CAdES.detached.
	CAdES
)

// state is the signer's lifecycle tag. Modeled as its own type (not bare
// booleans or nullability) so every operation pattern-matches explicitly.
type state int

const (
	stateOpen state = iota
	statePreClosed
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "OPEN"
	case statePreClosed:
		return "PRE_CLOSED"
	case stateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// FieldLock describes which form fields a signature freezes, mirrored into
// the FieldMDP /TransformParams when set.
type FieldLock struct {
	// Action is one of "All", "Include", "Exclude".
	Action string
	// Fields lists field names; meaningful only for Include/Exclude.
	Fields []string
}

// Appearance is the external visual-appearance collaborator boundary. The
// core never rasterizes anything; it only needs the placement rectangle and
// page, and an optional pre-rendered appearance stream.
type Appearance struct {
	Visible bool

	Page        uint32
	LowerLeftX  float64
	LowerLeftY  float64
	UpperRightX float64
	UpperRightY float64

	// Stream, if non-nil, is used verbatim as the widget's /AP /N appearance
	// stream content. Building it is the external collaborator's job.
	Stream []byte
}

// SignatureInfo carries the human-readable signature dictionary fields.
type SignatureInfo struct {
	Name        string
	Location    string
	Reason      string
	ContactInfo string
	Date        time.Time
}
