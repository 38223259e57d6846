// Package bufpool pools the byte slices used to assemble outbound SMB
// frames.
//
// Buffers come from size tiers: Get rounds a request up to the smallest
// tier that fits, and Put only accepts slices whose capacity is exactly a
// tier size. Requests above the largest tier are allocated directly and
// never pooled.
//
//	buf := bufpool.Get(n)
//	defer bufpool.Put(buf)
package bufpool

import (
	"slices"
	"sync"

	"github.com/marmos91/dittosmb/internal/bytesize"
)

// Default tiers: negotiate and session setup traffic fits the small tier;
// the large one covers a full 8 MiB transfer plus headers.
const (
	DefaultSmallSize  = int(4 * bytesize.KiB)
	DefaultMediumSize = int(64 * bytesize.KiB)
	DefaultLargeSize  = int(8*bytesize.MiB + 4*bytesize.KiB)
)

type tier struct {
	size int
	pool sync.Pool
}

// Pool is a set of tiered sync.Pools. Safe for concurrent use.
type Pool struct {
	tiers []*tier
}

// NewPool creates a pool with the given tier sizes. Non-positive sizes are
// dropped; with none left the default tiers are used.
func NewPool(sizes ...int) *Pool {
	sizes = slices.DeleteFunc(slices.Clone(sizes), func(s int) bool { return s <= 0 })
	if len(sizes) == 0 {
		sizes = []int{DefaultSmallSize, DefaultMediumSize, DefaultLargeSize}
	}
	slices.Sort(sizes)
	sizes = slices.Compact(sizes)

	p := &Pool{tiers: make([]*tier, len(sizes))}
	for i, size := range sizes {
		t := &tier{size: size}
		t.pool.New = func() any {
			buf := make([]byte, t.size)
			return &buf
		}
		p.tiers[i] = t
	}
	return p
}

// Get returns a slice of length size. Its capacity is the tier size, or
// exactly size when no tier fits.
func (p *Pool) Get(size int) []byte {
	for _, t := range p.tiers {
		if size <= t.size {
			buf := *t.pool.Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its tier. Slices not obtained from Get are ignored.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	for _, t := range p.tiers {
		if c == t.size {
			full := buf[:c]
			t.pool.Put(&full)
			return
		}
	}
}

// TierSizes lists the pooled capacities in ascending order.
func (p *Pool) TierSizes() []int {
	out := make([]int, len(p.tiers))
	for i, t := range p.tiers {
		out[i] = t.size
	}
	return out
}

var defaultPool = NewPool()

// Get takes a buffer from the default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put returns a buffer to the default pool.
func Put(buf []byte) { defaultPool.Put(buf) }
