package sign

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"testing"
)

// reserveTestDocument signs the test document with a container that emits no
// payload, leaving the /Contents gap all zero pad - the first half of the
// deferred workflow.
func reserveTestDocument(t *testing.T, estimate int64) (BackingStore, []int64) {
	t.Helper()
	signer := openTestSigner(t, Options{Container: &fixedContainer{}, EstimatedSize: estimate})
	result, err := signer.Sign()
	if err != nil {
		t.Fatalf("reserving sign pass: %v", err)
	}
	return result.Store, result.ByteRange
}

func TestSignDeferredFillsGap(t *testing.T) {
	const estimate = 100
	store, br := reserveTestDocument(t, estimate)
	before := storeBytes(t, store)

	payload := bytes.Repeat([]byte{0xAB}, 60)
	container := &fixedContainer{payload: payload}
	if err := SignDeferredDocument(store, "Signature1", DeferredOptions{Container: container}); err != nil {
		t.Fatalf("SignDeferredDocument: %v", err)
	}
	after := storeBytes(t, store)

	if len(after) != len(before) {
		t.Fatalf("deferred signing changed the file length: %d -> %d", len(before), len(after))
	}

	gapStart, gapEnd := br[1], br[2]
	if !bytes.Equal(after[:gapStart+1], before[:gapStart+1]) {
		t.Error("bytes before the gap changed")
	}
	if !bytes.Equal(after[gapEnd-1:], before[gapEnd-1:]) {
		t.Error("bytes after the gap changed")
	}

	body := after[gapStart+1 : gapEnd-1]
	wantHex := fmt.Sprintf("%x", payload)
	if string(body[:len(wantHex)]) != wantHex {
		t.Error("gap body does not start with the deferred payload")
	}
	for i := len(wantHex); i < len(body); i++ {
		if body[i] != '0' {
			t.Fatalf("gap pad byte %d is %q, want '0'", i, body[i])
		}
	}

	// The digest the deferred container consumed covers exactly the bytes
	// outside the gap, which preClose already fixed.
	if container.streamDigest == nil {
		t.Fatal("deferred container never received the hashable stream")
	}
	h := sha256.New()
	h.Write(before[br[0] : br[0]+br[1]])
	h.Write(before[br[2] : br[2]+br[3]])
	if !bytes.Equal(h.Sum(nil), container.streamDigest) {
		t.Error("deferred container digest does not cover exactly the bytes outside the gap")
	}
}

func TestSignDeferredIsIdempotent(t *testing.T) {
	const estimate = 100
	payload := bytes.Repeat([]byte{0x5A}, 48)

	run := func() []byte {
		store, _ := reserveTestDocument(t, estimate)
		if err := SignDeferredDocument(store, "Signature1", DeferredOptions{Container: &fixedContainer{payload: payload}}); err != nil {
			t.Fatalf("SignDeferredDocument: %v", err)
		}
		return storeBytes(t, store)
	}

	first := run()
	second := run()
	if !bytes.Equal(first, second) {
		t.Error("two deferred runs with identical inputs produced different bytes")
	}
}

func TestSignDeferredInsufficientSpace(t *testing.T) {
	store, _ := reserveTestDocument(t, 32)
	err := SignDeferredDocument(store, "Signature1", DeferredOptions{
		Container: &fixedContainer{payload: bytes.Repeat([]byte{1}, 33)},
	})
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("error = %v, want ErrInsufficientSpace", err)
	}
}

func TestSignDeferredNotLastSignature(t *testing.T) {
	store, _ := reserveTestDocument(t, 32)

	// Append trailing bytes so the reserved signature no longer covers the
	// whole document.
	if _, err := store.Seek(0, io.SeekEnd); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := store.Write([]byte("% trailing incremental update\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := SignDeferredDocument(store, "Signature1", DeferredOptions{Container: &fixedContainer{payload: []byte{1}}})
	if !errors.Is(err, ErrNotLastSignature) {
		t.Fatalf("error = %v, want ErrNotLastSignature", err)
	}
}

func TestSignDeferredUnknownField(t *testing.T) {
	store, _ := reserveTestDocument(t, 32)
	err := SignDeferredDocument(store, "NoSuchField", DeferredOptions{Container: &fixedContainer{payload: []byte{1}}})
	if err == nil {
		t.Fatal("expected an error for an unknown field name")
	}
}
