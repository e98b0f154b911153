package sign

import (
	"fmt"
	"io"
)

// rangeStream implements HashableStream: it yields the concatenation of a
// sequence of [offset,length) windows read from a BackingStore, forward
// only, exactly once. It streams rather than materializing the
// concatenation, so backing stores too large for a single []byte still
// work. Feeds both CMS digesting and TSA requests.
type rangeStream struct {
	store   BackingStore
	windows []exclusionRange
	total   int64

	windowIdx int
	remaining int64 // bytes left to read in the current window
}

// exclusionRange is a (offset,length) hashable region, in file order.
type exclusionRange struct {
	Offset int64
	Length int64
}

// newRangeStream builds a rangeStream from the flattened /ByteRange array
// [a0,l0,a1,l1,...].
func newRangeStream(store BackingStore, byteRange []int64) (*rangeStream, error) {
	if len(byteRange)%2 != 0 || len(byteRange) == 0 {
		return nil, fmt.Errorf("sign: malformed byte range %v", byteRange)
	}

	rs := &rangeStream{store: store}
	for i := 0; i < len(byteRange); i += 2 {
		w := exclusionRange{Offset: byteRange[i], Length: byteRange[i+1]}
		rs.windows = append(rs.windows, w)
		rs.total += w.Length
	}
	if len(rs.windows) > 0 {
		if _, err := store.Seek(rs.windows[0].Offset, io.SeekStart); err != nil {
			return nil, err
		}
		rs.remaining = rs.windows[0].Length
	}
	return rs, nil
}

func (rs *rangeStream) Len() int64 { return rs.total }

func (rs *rangeStream) Read(p []byte) (int, error) {
	for rs.remaining == 0 {
		rs.windowIdx++
		if rs.windowIdx >= len(rs.windows) {
			return 0, io.EOF
		}
		next := rs.windows[rs.windowIdx]
		if _, err := rs.store.Seek(next.Offset, io.SeekStart); err != nil {
			return 0, err
		}
		rs.remaining = next.Length
	}

	if int64(len(p)) > rs.remaining {
		p = p[:rs.remaining]
	}
	n, err := rs.store.Read(p)
	rs.remaining -= int64(n)
	return n, err
}
