package sign

import (
	"io"
	"os"

	"github.com/mattetti/filebuffer"
)

// BackingStore is the random-access read/write/seek sink the signer
// serializes the document into before any offsets are known. Two
// implementations: an in-memory buffer (small documents, the common case)
// and a temporary file (large documents where buffering in RAM is wasteful).
// Deferred signing operates on the same interface without re-serializing
// anything.
type BackingStore interface {
	io.ReadWriteSeeker
	io.ReaderAt
	// Len returns the current total number of bytes written.
	Len() int64
	// Close releases any OS resources; for a temp file this does not delete
	// it - call Cleanup for that.
	Close() error
	// Cleanup releases all resources, deleting any temp file.
	Cleanup() error
}

// memoryBackingStore wraps mattetti/filebuffer.Buffer, a seekable in-memory
// buffer.
type memoryBackingStore struct {
	buf *filebuffer.Buffer
}

// NewMemoryBackingStore returns a BackingStore entirely held in RAM.
func NewMemoryBackingStore() BackingStore {
	return &memoryBackingStore{buf: filebuffer.New(nil)}
}

func (m *memoryBackingStore) Read(p []byte) (int, error)            { return m.buf.Read(p) }
func (m *memoryBackingStore) ReadAt(p []byte, o int64) (int, error) { return m.buf.ReadAt(p, o) }
func (m *memoryBackingStore) Write(p []byte) (int, error)           { return m.buf.Write(p) }
func (m *memoryBackingStore) Seek(o int64, w int) (int64, error)    { return m.buf.Seek(o, w) }
func (m *memoryBackingStore) Len() int64                            { return int64(m.buf.Buff.Len()) }
func (m *memoryBackingStore) Close() error                          { return nil }
func (m *memoryBackingStore) Cleanup() error                        { return nil }

// fileBackingStore backs the document with a temp file, for callers signing
// documents too large to comfortably hold twice in memory (input + output).
type fileBackingStore struct {
	f    *os.File
	size int64
}

// NewFileBackingStore creates a temp file in dir (empty for os.TempDir) to
// back the document. The signer deletes it while closing when it also owns
// an output sink; otherwise the caller releases it via Cleanup.
func NewFileBackingStore(dir string) (BackingStore, error) {
	f, err := os.CreateTemp(dir, "pdfsigner-*.tmp")
	if err != nil {
		return nil, err
	}
	return &fileBackingStore{f: f}, nil
}

func (fb *fileBackingStore) Read(p []byte) (int, error)            { return fb.f.Read(p) }
func (fb *fileBackingStore) ReadAt(p []byte, o int64) (int, error) { return fb.f.ReadAt(p, o) }

func (fb *fileBackingStore) Write(p []byte) (int, error) {
	n, err := fb.f.Write(p)
	if end, serr := fb.f.Seek(0, io.SeekCurrent); serr == nil && end > fb.size {
		fb.size = end
	}
	return n, err
}
func (fb *fileBackingStore) Seek(o int64, w int) (int64, error) { return fb.f.Seek(o, w) }
func (fb *fileBackingStore) Len() int64                         { return fb.size }
func (fb *fileBackingStore) Close() error                       { return fb.f.Close() }
func (fb *fileBackingStore) Cleanup() error {
	_ = fb.f.Close()
	return os.Remove(fb.f.Name())
}
