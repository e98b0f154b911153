package sign

// Placeholder records where a deferred-value dictionary entry landed in the
// serialized output, and how many bytes were reserved for it.
type Placeholder struct {
	Offset int64
	Length int64
}

// PlaceholderTable maps a PDF name (without the leading "/") to its reserved
// span in the output. The key set always contains "ByteRange" (80 bytes) and
// "Contents".
type PlaceholderTable struct {
	entries map[string]Placeholder
}

// NewPlaceholderTable returns an empty table.
func NewPlaceholderTable() *PlaceholderTable {
	return &PlaceholderTable{entries: make(map[string]Placeholder)}
}

// Reserve records offset/length for key. Overwrites any prior reservation for
// the same key, which only happens across retries of a fresh-sign attempt.
func (t *PlaceholderTable) Reserve(key string, offset, length int64) {
	t.entries[key] = Placeholder{Offset: offset, Length: length}
}

// Lookup returns the reservation for key and whether it exists.
func (t *PlaceholderTable) Lookup(key string) (Placeholder, bool) {
	p, ok := t.entries[key]
	return p, ok
}

// Keys returns the reserved keys other than "ByteRange", in no particular
// order; callers that need determinism should sort.
func (t *PlaceholderTable) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		if k == "ByteRange" {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
