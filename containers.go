package containers

// Table is the common surface of the single-threaded byte-block hash
// tables (hashtable/divchn, hashtable/openaddr). Keys and elements
// are fixed-size blocks whose sizes are set at construction; Search
// returns a handle aliasing the in-table element block.
type Table interface {
	AlignElt(alignment int) error
	Insert(key, elt []byte)
	Search(key []byte) []byte
	Remove(key, elt []byte) bool
	Delete(key []byte) bool
	Len() uint64
	Count() uint64
	Free()
}

// BatchTable is the surface of the concurrent batched hash table
// (hashtable/divchnmt). Keys and elements arrive as contiguous runs
// of n blocks; a call is the unit of publication.
type BatchTable interface {
	AlignElt(alignment int) error
	Insert(keys, elts []byte, n int)
	Search(key []byte) []byte
	Remove(keys, out []byte, n int) uint64
	Delete(keys []byte, n int) uint64
	Len() uint64
	Count() uint64
	Free()
}
