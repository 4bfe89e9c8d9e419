package knn

// BitSet tracks visited node ids during a graph traversal.
type BitSet struct {
	buckets []uint64
}

// NewBitSet returns a BitSet able to hold ids up to initialCapacity without
// growing.
func NewBitSet(initialCapacity uint32) *BitSet {
	return &BitSet{buckets: make([]uint64, (initialCapacity>>6)+1)}
}

func (bs *BitSet) grow(n uint32) {
	needed := (n >> 6) + 1 // >> 6 == / 64
	if uint32(len(bs.buckets)) < needed {
		buckets := make([]uint64, needed)
		copy(buckets, bs.buckets)
		bs.buckets = buckets
	}
}

// Add marks n as visited.
func (bs *BitSet) Add(n uint32) {
	if n>>6 >= uint32(len(bs.buckets)) {
		bs.grow(n)
	}
	bs.buckets[n>>6] |= 1 << (n & 63) // n & 63 == n % 64
}

// Has reports whether n was marked.
func (bs *BitSet) Has(n uint32) bool {
	bucket := n >> 6
	if bucket >= uint32(len(bs.buckets)) {
		return false
	}
	return bs.buckets[bucket]&(1<<(n&63)) != 0
}

// Clear unmarks every id and keeps the capacity.
func (bs *BitSet) Clear() {
	clear(bs.buckets)
}
