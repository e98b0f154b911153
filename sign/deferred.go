package sign

import (
	"crypto/x509"
	"fmt"
	"io"

	"github.com/digitorus/pdf"
	"github.com/sigpress/pdfsigner/internal/pdfio"
)

// DeferredOptions configures a SignDeferred call: the same signing
// collaborators fresh signing uses, but none of the dictionary/field/catalog
// construction options, since all of that was already committed to disk by
// whatever earlier preClose pass reserved the gap being filled in now.
type DeferredOptions struct {
	Signer     ExternalSignature
	Container  ExternalSignatureContainer
	CertChain  []*x509.Certificate
	CrlClients []CrlClient
	OcspClient OcspClient
	TsaClient  TsaClient
	Standard   Standard
	Digest     ExternalDigest
	// IsTimestamp selects the bare RFC 3161 token path for a /DocTimeStamp
	// gap, mirroring Options.IsTimestamp.
	IsTimestamp bool
}

// SignDeferred fills a previously reserved signature gap: given a document
// whose /ByteRange is final and whose /Contents is still all zero pad, plus
// the name of the field carrying that reservation, it computes the digest
// over the hashable stream, builds the signature container, and overwrites
// the gap in place. No other byte in the file changes, so the result is
// byte-length-identical to the reserved input. The gap the signature lands
// in is exactly [ByteRange[0]+ByteRange[1], ByteRange[2]).
func SignDeferred(store BackingStore, reader *pdfio.Reader, fieldName string, opts DeferredOptions) error {
	return signDeferred(store, reader, fieldName, opts)
}

// SignDeferredDocument parses the reserved document held in store and runs
// SignDeferred over it, for callers that hold only the bytes, not a parsed
// reader.
func SignDeferredDocument(store BackingStore, fieldName string, opts DeferredOptions) error {
	rdr, err := pdf.NewReader(store, store.Len())
	if err != nil {
		return fmt.Errorf("%w: parsing reserved document: %v", ErrIO, err)
	}
	return signDeferred(store, pdfio.Open(rdr, store.Len()), fieldName, opts)
}

func signDeferred(store BackingStore, reader *pdfio.Reader, fieldName string, opts DeferredOptions) error {
	fieldObjectID, ok := findFieldObjectID(reader, fieldName)
	if !ok {
		return fmt.Errorf("sign: field %q not found", fieldName)
	}

	fieldVal, err := reader.GetObject(fieldObjectID)
	if err != nil {
		return fmt.Errorf("%w: resolving field object %d: %v", ErrIO, fieldObjectID, err)
	}
	sigDict := fieldVal.Key("V")
	if sigDict.IsNull() {
		return fmt.Errorf("sign: field %q has no /V signature value", fieldName)
	}

	byteRange, err := readByteRangeInts(sigDict)
	if err != nil {
		return err
	}
	if len(byteRange) != 4 || byteRange[0] != 0 {
		return ErrSingleExclusionOnly
	}

	fileLength := store.Len()
	lastWindowEnd := byteRange[2] + byteRange[3]
	if lastWindowEnd != fileLength {
		return ErrNotLastSignature
	}

	gapStart := byteRange[0] + byteRange[1]
	gapEnd := byteRange[2]
	gapLength := gapEnd - gapStart
	if gapLength < 2 || gapLength%2 != 0 {
		return ErrGapNotEven
	}
	capacity := (gapLength - 2) / 2

	stream, err := newRangeStream(store, byteRange)
	if err != nil {
		return err
	}

	containerBytes, err := buildDeferredContainer(stream, opts)
	if err != nil {
		return err
	}
	if int64(len(containerBytes)) > capacity {
		return ErrInsufficientSpace
	}

	padded := make([]byte, capacity)
	copy(padded, containerBytes)

	if _, err := store.Seek(gapStart+1, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seeking into /Contents gap: %v", ErrIO, err)
	}
	if _, err := fmt.Fprintf(store, "%x", padded); err != nil {
		return fmt.Errorf("%w: writing deferred signature: %v", ErrIO, err)
	}

	return nil
}

func buildDeferredContainer(stream HashableStream, opts DeferredOptions) ([]byte, error) {
	switch {
	case opts.Container != nil:
		return opts.Container.Sign(stream)
	case opts.IsTimestamp:
		return BuildDocumentTimestamp(stream, opts.TsaClient)
	default:
		builder := &ContainerBuilder{
			CertChain:  opts.CertChain,
			Signer:     opts.Signer,
			CrlClients: opts.CrlClients,
			OcspClient: opts.OcspClient,
			TsaClient:  opts.TsaClient,
			Standard:   opts.Standard,
			Digest:     opts.Digest,
		}
		return builder.Build(stream)
	}
}

func findFieldObjectID(reader *pdfio.Reader, fieldName string) (uint32, bool) {
	for _, f := range reader.ExistingSignatureFields() {
		if f.Name == fieldName {
			return f.ObjectID, true
		}
	}
	return 0, false
}

func readByteRangeInts(dict pdf.Value) ([]int64, error) {
	arr := dict.Key("ByteRange")
	if arr.IsNull() {
		return nil, fmt.Errorf("sign: signature dictionary has no /ByteRange")
	}
	out := make([]int64, arr.Len())
	for i := range out {
		out[i] = arr.Index(i).Int64()
	}
	return out, nil
}
