package sign

import (
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/digitorus/pdf"
	"github.com/sigpress/pdfsigner/internal/pdfio"
)

// Options configures a single signing operation: the signing collaborators
// (ExternalSignature or ExternalSignatureContainer, revocation/timestamp
// clients), the dictionary contents, and the field/appearance placement.
type Options struct {
	Signer      ExternalSignature
	Certificate *x509.Certificate
	// CertChain is the full chain, leaf first. If empty, Certificate alone is
	// used as a single-certificate chain.
	CertChain []*x509.Certificate

	// Container, when set, bypasses the built-in ContainerBuilder:
	// ModifySigningDictionary and Sign are called instead. Signer and
	// Certificate are unused in this mode.
	Container ExternalSignatureContainer

	// IsTimestamp selects the standalone /DocTimeStamp path (no /Reason,
	// /Location, /ContactInfo, /M, no CMS wrapper - just the raw RFC 3161
	// token). TsaClient must be set.
	IsTimestamp bool

	Standard           Standard
	CertificationLevel CertificationLevel
	FieldLock          *FieldLock
	Info               SignatureInfo
	Appearance         Appearance

	// FieldName selects which /Sig field to bind to; empty selects the next
	// available "Signature<k>".
	FieldName string

	CrlClients []CrlClient
	OcspClient OcspClient
	TsaClient  TsaClient

	// Digest optionally substitutes the message digest implementation used
	// during container assembly; nil uses the standard library's hashes.
	Digest ExternalDigest

	SignatureEvent SignatureEvent

	// EstimatedSize reserves this many bytes (pre-hex-encoding) for
	// /Contents; 0 selects a default sized to the configured collaborators.
	EstimatedSize int64

	// MaxRetries enables automatic growth: on ErrNotEnoughSpace the whole
	// reserve/serialize/hash/embed cycle restarts against a fresh store with
	// EstimatedSize doubled, up to MaxRetries additional attempts.
	MaxRetries int

	// Output, when set, receives the finished document after close. It is
	// closed exactly once, on both the success and the error path, and the
	// backing store is cleaned up (temp file deleted) once streaming
	// completes. When nil, the caller takes ownership of Result.Store.
	Output io.WriteCloser

	// NewStore creates a fresh BackingStore for each attempt. Defaults to an
	// in-memory buffer.
	NewStore func() (BackingStore, error)

	Logger *log.Logger
}

// Result is what a completed Signer produces: the finished document in
// store, and the byte range/field name it was signed under (useful for
// callers that want to report or re-verify without re-parsing).
//
// Store is nil when Options.Output was set: the document has already been
// streamed to the sink and the backing store released.
type Result struct {
	Store     BackingStore
	ByteRange []int64
	FieldName string
}

// Signer drives the OPEN -> PRE_CLOSED -> CLOSED state machine for one
// signing operation against one input document. One Signer is good for
// exactly one Sign call; state is not reset after CLOSED.
type Signer struct {
	reader *pdfio.Reader
	input  io.ReadSeeker
	opts   Options

	certChain []*x509.Certificate
	logger    *log.Logger

	state state

	store        BackingStore
	writer       *pdfio.Writer
	dict         *SignatureDictionary
	placeholders *PlaceholderTable

	fieldName      string
	existingField  *pdfio.SignatureField
	fieldResult    fieldBindResult
	widgetObjectID uint32
	rootObjectID   uint32

	estimatedSize  int64
	byteRange      []int64
	prefetchedCRLs [][]byte
}

// InputDocument combines the sequential copy and random-access parsing the
// signer needs over the original file. *os.File and *filebuffer.Buffer both
// satisfy it.
type InputDocument interface {
	io.ReadSeeker
	io.ReaderAt
}

// Open parses the document in input and returns a Signer over it. size is
// the document's total length in bytes.
func Open(input InputDocument, size int64, opts Options) (*Signer, error) {
	rdr, err := pdf.NewReader(input, size)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing document: %v", ErrIO, err)
	}
	reader := pdfio.Open(rdr, size)
	if !reader.XrefIsTable() {
		return nil, fmt.Errorf("%w: document uses a cross-reference stream, which incremental signing does not support", ErrIO)
	}
	return New(reader, input, opts)
}

// New prepares a Signer for input (the original document, seekable) per opts.
func New(reader *pdfio.Reader, input io.ReadSeeker, opts Options) (*Signer, error) {
	if opts.Container == nil && opts.Signer == nil && !opts.IsTimestamp {
		return nil, fmt.Errorf("sign: Options.Signer or Options.Container must be set")
	}
	if opts.IsTimestamp && opts.TsaClient == nil {
		return nil, fmt.Errorf("sign: Options.IsTimestamp requires a TsaClient")
	}

	chain := opts.CertChain
	if len(chain) == 0 && opts.Certificate != nil {
		chain = []*x509.Certificate{opts.Certificate}
	}
	if !opts.IsTimestamp && opts.Container == nil && len(chain) == 0 {
		return nil, ErrNilCertificate
	}

	if opts.NewStore == nil {
		opts.NewStore = func() (BackingStore, error) { return NewMemoryBackingStore(), nil }
	}

	return &Signer{
		reader:    reader,
		input:     input,
		opts:      opts,
		certChain: chain,
		logger:    opts.Logger,
		state:     stateOpen,
	}, nil
}

// Sign runs the full reserve/serialize/hash/embed cycle to completion,
// transparently retrying with a larger reservation on ErrNotEnoughSpace when
// Options.MaxRetries allows it. A Signer is single-use: a second Sign call
// fails with ErrAlreadyClosed regardless of whether the first succeeded.
func (s *Signer) Sign() (*Result, error) {
	if s.state == stateClosed {
		return nil, ErrAlreadyClosed
	}

	result, err := s.run()

	if s.opts.Output != nil {
		if err == nil {
			err = s.deliver()
		}
		if cerr := s.opts.Output.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing output sink: %v", ErrIO, cerr)
		}
		if s.store != nil {
			_ = s.store.Cleanup()
			s.store = nil
		}
		if result != nil {
			result.Store = nil
		}
	} else if err != nil && s.store != nil {
		_ = s.store.Cleanup()
		s.store = nil
	}

	s.state = stateClosed
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Signer) run() (*Result, error) {
	if len(s.opts.CrlClients) > 0 {
		s.prefetchedCRLs = prefetchCRLs(s.certChain, s.opts.CrlClients)
	}

	estimate := s.opts.EstimatedSize
	if estimate <= 0 {
		estimate = defaultEstimatedSize(s.opts, s.prefetchedCRLs)
	}

	retriesLeft := s.opts.MaxRetries
	for {
		if err := s.preClose(estimate); err != nil {
			return nil, err
		}

		result, err := s.close()
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNotEnoughSpace) || retriesLeft <= 0 {
			return nil, err
		}

		retriesLeft--
		estimate *= 2
		_ = s.store.Cleanup()
		s.store = nil
		s.state = stateOpen
		s.logf("sign: container exceeded reservation, retrying with estimated_size=%d (%d attempts left)", estimate, retriesLeft)
	}
}

// deliver streams the finished document from the backing store to the
// configured output sink.
func (s *Signer) deliver() error {
	if _, err := s.store.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewinding backing store: %v", ErrIO, err)
	}
	if _, err := io.CopyN(s.opts.Output, s.store, s.store.Len()); err != nil {
		return fmt.Errorf("%w: streaming to output sink: %v", ErrIO, err)
	}
	return nil
}

// preClose runs the reserve-and-serialize phase: it copies the original
// document, appends the signature dictionary (with placeholder /ByteRange
// and /Contents), binds the signature field, and rebuilds the catalog and
// (if visible) the target page - everything except the signature bytes
// themselves.
func (s *Signer) preClose(estimatedSize int64) error {
	switch s.state {
	case stateOpen:
	case statePreClosed:
		return ErrAlreadyPreClosed
	default:
		return ErrAlreadyClosed
	}

	store, err := s.opts.NewStore()
	if err != nil {
		return fmt.Errorf("%w: allocating backing store: %v", ErrIO, err)
	}
	s.store = store

	writer := pdfio.NewWriter(store, uint32(s.reader.ItemCount()))
	if err := writer.CopyInput(s.input); err != nil {
		return fmt.Errorf("%w: copying input document: %v", ErrIO, err)
	}
	s.writer = writer

	fieldName := s.opts.FieldName
	if fieldName == "" {
		fieldName = s.reader.NextFieldName()
	}
	s.fieldName = fieldName

	if ft, found := s.reader.FormFieldType(fieldName); found && ft != "Sig" {
		return ErrFieldTypeNotSignature
	}

	var existing *pdfio.SignatureField
	for _, f := range s.reader.ExistingSignatureFields() {
		if f.Name == fieldName {
			fcopy := f
			existing = &fcopy
		}
	}
	if err := validateExistingField(existing); err != nil {
		return err
	}
	s.existingField = existing

	fieldLock := s.opts.FieldLock
	if existing != nil && existing.HasLock {
		fieldLock = &FieldLock{Action: existing.LockAction, Fields: existing.LockFields}
	}

	rootID, _ := s.reader.RootRef()
	s.rootObjectID = uint32(rootID)

	var dict *SignatureDictionary
	if s.opts.IsTimestamp {
		dict = newTimestampDictionary()
	} else {
		dict = newSignatureDictionary(s.opts.Standard, s.opts.CertificationLevel, fieldLock, s.opts.Info)
	}
	dict.CatalogObjectID = s.rootObjectID
	dict.PDFMajor, dict.PDFMinor = pdfio.ParseVersion(store)

	if s.opts.SignatureEvent != nil {
		s.opts.SignatureEvent.OnSignatureDictionary(dict)
	}
	if s.opts.Container != nil {
		s.opts.Container.ModifySigningDictionary(dict)
	}
	s.dict = dict

	dictBytes, byteRangeRel, contentsRel := dict.serialize(estimatedSize, propBuild())

	sigObjectID := writer.NextObjectID()
	_, contentStart, err := writer.AddObject(dictBytes)
	if err != nil {
		return fmt.Errorf("%w: writing signature dictionary: %v", ErrIO, err)
	}

	placeholders := NewPlaceholderTable()
	placeholders.Reserve("ByteRange", contentStart+byteRangeRel, byteRangePlaceholderWidth)
	placeholders.Reserve("Contents", contentStart+contentsRel, 2*estimatedSize)
	s.placeholders = placeholders
	s.estimatedSize = estimatedSize

	var apObjectID uint32
	if s.opts.Appearance.Visible && len(s.opts.Appearance.Stream) > 0 {
		apObjectID, _, err = writer.AddObject(appearanceStreamObject(s.opts.Appearance))
		if err != nil {
			return fmt.Errorf("%w: writing appearance stream: %v", ErrIO, err)
		}
	}

	widgetBuf, fieldRes, err := bindField(s.reader, fieldName, s.opts.Appearance, sigObjectID, apObjectID, existing)
	if err != nil {
		return err
	}
	s.fieldResult = fieldRes

	var widgetObjectID uint32
	if existing != nil {
		widgetObjectID = existing.ObjectID
		if _, err := writer.UpdateObject(widgetObjectID, widgetBuf.Bytes()); err != nil {
			return fmt.Errorf("%w: updating signature field: %v", ErrIO, err)
		}
	} else {
		widgetObjectID, _, err = writer.AddObject(widgetBuf.Bytes())
		if err != nil {
			return fmt.Errorf("%w: writing signature field: %v", ErrIO, err)
		}
	}
	s.widgetObjectID = widgetObjectID

	if fieldRes.pageObjectID != 0 {
		page, perr := s.reader.FindPage(pageOrDefault(s.opts.Appearance.Page))
		if perr != nil {
			return fmt.Errorf("%w: re-locating annotated page: %v", ErrIO, perr)
		}
		pageBytes := incrementalPageUpdate(page, widgetObjectID)
		if _, err := writer.UpdateObject(fieldRes.pageObjectID, pageBytes); err != nil {
			return fmt.Errorf("%w: updating page annotations: %v", ErrIO, err)
		}
	}

	fieldObjectIDs := existingFieldObjectIDs(s.reader)
	if existing == nil {
		fieldObjectIDs = append(fieldObjectIDs, widgetObjectID)
	}

	sigFlags := sigFlagSignaturesExist | sigFlagAppendOnly

	extensions := developerExtension(s.opts.Standard, s.opts.IsTimestamp)
	catalogBytes := buildCatalog(s.reader, fieldObjectIDs, sigFlags, s.opts.CertificationLevel, sigObjectID, extensions)
	if _, err := writer.UpdateObject(s.rootObjectID, catalogBytes); err != nil {
		return fmt.Errorf("%w: updating catalog: %v", ErrIO, err)
	}

	s.state = statePreClosed
	s.logf("sign: preClose reserved %d bytes for /Contents of field %q", estimatedSize, fieldName)
	return nil
}

// close runs the finishing phase: write the closing xref/trailer, compute
// and fill in /ByteRange, assemble the signature container over the
// resulting hashable stream, and embed it into the reserved /Contents gap.
// Split from preClose so a grow-and-retry can re-run preClose, which copies
// the original input again, against a fresh store.
func (s *Signer) close() (*Result, error) {
	if s.state != statePreClosed {
		return nil, ErrMustBePreClosed
	}

	xrefStart, err := s.writer.WriteXref()
	if err != nil {
		return nil, fmt.Errorf("%w: writing xref: %v", ErrIO, err)
	}
	if err := s.writer.WriteTrailer(s.rootObjectID, s.reader.XrefStartPos(), s.writer.NextObjectID(), "", ""); err != nil {
		return nil, fmt.Errorf("%w: writing trailer: %v", ErrIO, err)
	}
	if err := s.writer.WriteStartXref(xrefStart); err != nil {
		return nil, fmt.Errorf("%w: writing startxref: %v", ErrIO, err)
	}

	contentsPH, ok := s.placeholders.Lookup("Contents")
	if !ok {
		return nil, ErrNoCryptoDictionary
	}
	byteRangePH, ok := s.placeholders.Lookup("ByteRange")
	if !ok {
		return nil, ErrNoCryptoDictionary
	}

	fileLength := s.store.Len()
	// The exclusion window spans the whole hex literal, '<' and '>'
	// included; only the delimiters' enclosed value is overwritten later.
	windows := []exclusionWindow{{Offset: contentsPH.Offset - 1, Length: contentsPH.Length + 2}}
	byteRangeValues, err := computeByteRange(windows, fileLength)
	if err != nil {
		return nil, err
	}
	s.byteRange = byteRangeValues

	byteRangeLiteral, err := formatByteRange(byteRangeValues)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Seek(byteRangePH.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to /ByteRange: %v", ErrIO, err)
	}
	if _, err := s.store.Write([]byte(byteRangeLiteral)); err != nil {
		return nil, fmt.Errorf("%w: writing /ByteRange: %v", ErrIO, err)
	}

	stream, err := newRangeStream(s.store, byteRangeValues)
	if err != nil {
		return nil, err
	}

	containerBytes, err := s.buildContainer(stream)
	if err != nil {
		return nil, err
	}

	capacity := contentsPH.Length / 2
	if int64(len(containerBytes)) > capacity {
		return nil, ErrNotEnoughSpace
	}
	padded := make([]byte, capacity)
	copy(padded, containerBytes)
	hexBody := make([]byte, hex.EncodedLen(len(padded)))
	hex.Encode(hexBody, padded)

	if err := s.applyUpdates(map[string][]byte{"Contents": hexBody}); err != nil {
		return nil, err
	}

	s.state = stateClosed
	s.logf("sign: close embedded %d container bytes into a %d-byte reservation", len(containerBytes), capacity)

	return &Result{Store: s.store, ByteRange: s.byteRange, FieldName: s.fieldName}, nil
}

// applyUpdates overwrites reserved placeholders with their final serialized
// values. The update set must cover every reserved key other than /ByteRange
// (which close fills itself), each value must have a reservation, and no
// value may exceed its reserved span. Values shorter than the reservation
// leave the placeholder's trailing pad bytes in place.
func (s *Signer) applyUpdates(updates map[string][]byte) error {
	for _, key := range s.placeholders.Keys() {
		if _, ok := updates[key]; !ok {
			return fmt.Errorf("%w: %s", ErrUpdateKeysMissing, key)
		}
	}

	for key, value := range updates {
		ph, ok := s.placeholders.Lookup(key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrKeyNotReserved, key)
		}
		if int64(len(value)) > ph.Length {
			return fmt.Errorf("%w: %s is %d bytes, %d reserved", ErrValueTooLarge, key, len(value), ph.Length)
		}
		if _, err := s.store.Seek(ph.Offset, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seeking to /%s: %v", ErrIO, key, err)
		}
		if _, err := s.store.Write(value); err != nil {
			return fmt.Errorf("%w: writing /%s: %v", ErrIO, key, err)
		}
	}
	return nil
}

// buildContainer dispatches to whichever container producer the caller
// configured: an opaque ExternalSignatureContainer, the built-in CMS/CAdES
// ContainerBuilder, or (for /DocTimeStamp) the bare RFC 3161 token path.
func (s *Signer) buildContainer(stream HashableStream) ([]byte, error) {
	switch {
	case s.opts.Container != nil:
		return s.opts.Container.Sign(stream)
	case s.opts.IsTimestamp:
		return BuildDocumentTimestamp(stream, s.opts.TsaClient)
	default:
		builder := &ContainerBuilder{
			CertChain:      s.certChain,
			Signer:         s.opts.Signer,
			CrlClients:     s.opts.CrlClients,
			OcspClient:     s.opts.OcspClient,
			TsaClient:      s.opts.TsaClient,
			Standard:       s.opts.Standard,
			PrefetchedCRLs: s.prefetchedCRLs,
			Digest:         s.opts.Digest,
		}
		return builder.Build(stream)
	}
}

func (s *Signer) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// existingFieldObjectIDs returns every object id currently listed in
// /AcroForm /Fields, preserved as-is so a new signature never displaces an
// unrelated form field.
func existingFieldObjectIDs(reader *pdfio.Reader) []uint32 {
	acroForm := reader.AcroForm()
	if acroForm.IsNull() {
		return nil
	}
	fields := acroForm.Key("Fields")
	if fields.IsNull() {
		return nil
	}
	ids := make([]uint32, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		ids = append(ids, fields.Index(i).GetPtr().GetID())
	}
	return ids
}

// defaultEstimatedSize sizes the reservation when the caller gives no
// estimate: a flat base, 4192 bytes for an OCSP response, the TSA's own
// token estimate, and each prefetched CRL's real length plus a 10-byte
// encoding margin. Nothing but the CRLs can be measured before the
// placeholder is committed to the output.
func defaultEstimatedSize(opts Options, crls [][]byte) int64 {
	size := int64(DefaultEstimatedSize)
	if opts.OcspClient != nil {
		size += 4192
	}
	if opts.TsaClient != nil {
		size += int64(opts.TsaClient.TokenSizeEstimate())
	}
	for _, crl := range crls {
		size += int64(len(crl)) + 10
	}
	return size
}

// prefetchCRLs downloads the CRLs for every chain certificate once, before
// the reservation is sized, so the estimate can account for their real
// lengths and the container build doesn't fetch them a second time.
// Best-effort: a certificate no client can serve contributes nothing.
func prefetchCRLs(chain []*x509.Certificate, clients []CrlClient) [][]byte {
	var out [][]byte
	for _, cert := range chain {
		for _, client := range clients {
			encoded, err := client.GetEncoded(cert, "")
			if err != nil {
				continue
			}
			out = append(out, encoded...)
			break
		}
	}
	return out
}
