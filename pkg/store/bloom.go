package store

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

// Bloom is a fixed-size bloom filter attached to each sorted file so a
// negative lookup can usually be rejected without touching disk (§4.1:
// "bloom filter ... rejects ≥99% of negative lookups"). It uses the
// Kirsch-Mitzenmacher double-hashing trick over a single xxhash so k
// independent-looking hashes cost one real hash evaluation.
type Bloom struct {
	bits *bitset.BitSet
	k    uint
	m    uint
}

// NewBloom sizes a filter for n expected entries at the given target false
// positive rate, using the standard optimal-m/optimal-k formulas.
func NewBloom(n int, falsePositiveRate float64) *Bloom {
	if n <= 0 {
		n = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	m := uint(math.Ceil(-float64(n) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := uint(math.Round(float64(m) / float64(n) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return &Bloom{bits: bitset.New(m), k: k, m: m}
}

func (b *Bloom) hashes(key []byte) (h1, h2 uint64) {
	h1 = xxhash.Sum64(key)
	h2 = xxhash.Sum64(append(append([]byte(nil), key...), 0xff))
	return h1, h2
}

// Add records key in the filter.
func (b *Bloom) Add(key []byte) {
	h1, h2 := b.hashes(key)
	for i := uint(0); i < b.k; i++ {
		b.bits.Set(uint((h1 + uint64(i)*h2) % uint64(b.m)))
	}
}

// MayContain reports whether key could be present. false is authoritative;
// true requires a real lookup to confirm.
func (b *Bloom) MayContain(key []byte) bool {
	h1, h2 := b.hashes(key)
	for i := uint(0); i < b.k; i++ {
		if !b.bits.Test(uint((h1 + uint64(i)*h2) % uint64(b.m))) {
			return false
		}
	}
	return true
}

// Bytes serializes the filter's bit array for writing into a sorted
// file's footer.
func (b *Bloom) Bytes() ([]byte, error) {
	return b.bits.MarshalBinary()
}

// LoadBloom deserializes a filter previously written by Bytes, along with
// the k that was used to build it (recorded separately in the footer).
func LoadBloom(data []byte, k uint) (*Bloom, error) {
	bs := &bitset.BitSet{}
	if err := bs.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &Bloom{bits: bs, k: k, m: bs.Len()}, nil
}

// K returns the number of hash probes per operation, needed to reload a
// filter from its serialized bit array.
func (b *Bloom) K() uint { return b.k }
