package sign

import "errors"

// State-machine violations.
var (
	ErrAlreadyClosed    = errors.New("sign: signer is already closed")
	ErrAlreadyPreClosed = errors.New("sign: signer is already pre-closed")
	ErrMustBePreClosed  = errors.New("sign: signer must be pre-closed before close")
)

// preClose validation.
var (
	ErrNoCryptoDictionary = errors.New("sign: preClose invoked without a signature dictionary")
)

// Field validation.
var (
	ErrFieldNameContainsDot  = errors.New("sign: field name must not contain '.'")
	ErrFieldTypeNotSignature = errors.New("sign: existing field is not of type /Sig")
	ErrFieldAlreadySigned    = errors.New("sign: existing field already carries a /V entry")
)

// Space/layout errors, fresh and deferred signing.
var (
	ErrNotEnoughSpace      = errors.New("sign: signature container exceeds the reserved /Contents space")
	ErrInsufficientSpace   = errors.New("sign: deferred signature exceeds the reserved gap")
	ErrGapNotEven          = errors.New("sign: reserved /Contents gap has an odd length")
	ErrSingleExclusionOnly = errors.New("sign: deferred signing requires exactly one exclusion window")
	ErrOverlappingRanges   = errors.New("sign: exclusion regions overlap")
)

// close-phase dictionary mismatches.
var (
	ErrKeyNotReserved    = errors.New("sign: update key has no reserved placeholder")
	ErrValueTooLarge     = errors.New("sign: serialized value exceeds its reserved placeholder")
	ErrUpdateKeysMissing = errors.New("sign: update_dict is missing a reserved placeholder key")
)

// Deferred signing over a non-final signature.
var (
	ErrNotLastSignature = errors.New("sign: deferred signing target is not the last signature in the document")
)

// Wrapped underlying failures. Use errors.Is against these, and
// fmt.Errorf("...: %w", ...) to attach the concrete cause.
var (
	ErrIO     = errors.New("sign: I/O failure")
	ErrCrypto = errors.New("sign: cryptographic operation failed")
)
