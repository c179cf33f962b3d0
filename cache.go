package lasvm

import (
	"slices"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/djdv/go-lasvm/internal/ring"
)

type (
	// Kernel computes the kernel value between examples i and j.
	// It is called synchronously and must be a valid
	// (positive semi-definite) Mercer kernel.
	Kernel func(i, j int) float64

	// Cache stores rows of the kernel matrix under a memory budget.
	// Row i holds `K(i, Index(r))` for ranks r in `[0, StatusRow(i))`.
	// Concurrent access must be guarded by the caller.
	// Constructed by [NewCache].
	Cache struct {
		kernel   Kernel
		log      logrus.FieldLogger
		i2r, r2i []int
		// size is the cached row length per index;
		// -1 means the diagonal was never computed.
		size  []int
		diag  []float64
		data  [][]float64
		lru   ring.List
		stats CacheStats
		maxSize,
		currentSize int64
		bound bool
	}

	// CacheStats counts work done by a [Cache].
	CacheStats struct {
		// Evaluations is the number of kernel function calls.
		Evaluations int64
		// Reused is the number of row entries copied
		// from the transposed row instead of being computed.
		Reused int64
		// Hits and Misses count [Cache.QueryRow] requests
		// that were, or were not, already long enough.
		Hits, Misses int64
		// Evictions counts rows dropped to honor the budget.
		Evictions int64
	}
)

const (
	// minimumCapacity is the floor of the index-space growth policy.
	minimumCapacity = 256
	entrySize       = int64(unsafe.Sizeof(float64(0)))
)

// NewCache creates a [Cache] bound to kernel.
// Options: [WithMaxSize], [WithLogger].
func NewCache(kernel Kernel, options ...Option) (*Cache, error) {
	if kernel == nil {
		return nil, contractError(ErrNilKernel, "NewCache")
	}
	settings := gatherOptions(options)
	return &Cache{
		kernel:  kernel,
		log:     settings.log.WithField("component", "kcache"),
		maxSize: settings.maxSize,
	}, nil
}

// SetMaxSize changes the budget and evicts rows to honor it.
func (c *Cache) SetMaxSize(bytes int64) error {
	if bytes <= 0 {
		return contractError(ErrInvalidSize,
			"must be >0 but %d was requested", bytes)
	}
	c.maxSize = bytes
	c.purge()
	return nil
}

// MaxSize returns the budget, in bytes.
func (c *Cache) MaxSize() int64 { return c.maxSize }

// CurrentSize returns the bytes held by cached rows.
func (c *Cache) CurrentSize() int64 { return c.currentSize }

// Stats returns the work counters.
func (c *Cache) Stats() CacheStats { return c.stats }

// Rank returns the rank of index i.
// Indices never referenced hold their identity rank.
func (c *Cache) Rank(i int) int {
	if i >= 0 && i < len(c.i2r) {
		return c.i2r[i]
	}
	return i
}

// Index returns the index holding rank r.
// Ranks never referenced hold their identity index.
func (c *Cache) Index(r int) int {
	if r >= 0 && r < len(c.r2i) {
		return c.r2i[r]
	}
	return r
}

func nextCapacity(current, n int) int {
	capacity := max(minimumCapacity, current)
	for capacity < n {
		capacity += capacity
	}
	return capacity
}

func extend[T any](s []T, n int) []T {
	return append(s, make([]T, n-len(s))...)
}

// ensure grows the index space to hold at least n indices.
func (c *Cache) ensure(n int) {
	old := len(c.size)
	if n <= old {
		return
	}
	capacity := nextCapacity(old, n)
	c.i2r = extend(c.i2r, capacity)
	c.r2i = extend(c.r2i, capacity)
	c.size = extend(c.size, capacity)
	c.diag = extend(c.diag, capacity)
	c.data = extend(c.data, capacity)
	for i := old; i < capacity; i++ {
		c.i2r[i] = i
		c.r2i[i] = i
		c.size[i] = -1
		c.diag[i] = 0
		c.data[i] = nil
	}
	c.lru.Grow(capacity)
	c.log.Debugf("index space grown from %d to %d", old, capacity)
}

func (c *Cache) evaluate(i, j int) float64 {
	c.stats.Evaluations++
	return c.kernel(i, j)
}

// Query returns `K(i, j)` without caching anything.
// Cached values are used when either row covers the other index.
func (c *Cache) Query(i, j int) (float64, error) {
	if i < 0 {
		return 0, indexError("index", i)
	}
	if j < 0 {
		return 0, indexError("index", j)
	}
	if length := len(c.size); i < length && j < length {
		if s, p := c.size[i], c.i2r[j]; p < s {
			return c.data[i][p], nil
		} else if i == j && s >= 0 {
			return c.diag[i], nil
		}
		if s, p := c.size[j], c.i2r[i]; p < s {
			return c.data[j][p], nil
		}
	}
	return c.evaluate(i, j), nil
}

// QueryRow returns the first length entries of row i, ordered by rank,
// computing the missing ones and marking the row most recently used.
// The returned slice aliases cache storage; it is only valid until the
// next call that swaps ranks.
func (c *Cache) QueryRow(i, length int) ([]float64, error) {
	if i < 0 {
		return nil, indexError("index", i)
	}
	if length < 0 {
		return nil, indexError("row length", length)
	}
	if i < len(c.size) && length <= c.size[i] {
		c.stats.Hits++
		if c.size[i] > 0 {
			c.lru.PushFront(i)
		}
		return c.data[i][:length], nil
	}
	c.stats.Misses++
	c.ensure(max(i+1, length))
	old := c.size[i]
	if old < 0 {
		c.diag[i] = c.evaluate(i, i)
		old = 0
		c.size[i] = 0
	}
	c.extend(i, length)
	var (
		rank = c.i2r[i]
		row  = c.data[i]
	)
	for p := old; p < length; p++ {
		j := c.r2i[p]
		switch {
		case i == j:
			row[p] = c.diag[i]
		case rank < c.size[j]:
			row[p] = c.data[j][rank]
			c.stats.Reused++
		default:
			row[p] = c.evaluate(i, j)
		}
	}
	// Detached while purging, so the row being built is never evicted.
	c.lru.Remove(i)
	c.purge()
	if length > 0 {
		c.lru.PushFront(i)
	}
	return row[:length], nil
}

// StatusRow returns the cached length of row i (0 if none).
func (c *Cache) StatusRow(i int) int {
	if i >= 0 && i < len(c.size) {
		return max(0, c.size[i])
	}
	return 0
}

// DiscardRow marks row i as least recently used,
// so it is the first candidate for eviction.
func (c *Cache) DiscardRow(i int) error {
	if i < 0 {
		return indexError("index", i)
	}
	if i < len(c.size) && c.size[i] > 0 {
		c.lru.PushBack(i)
	}
	return nil
}

func (c *Cache) extend(k, length int) {
	old := c.size[k]
	if length <= old {
		return
	}
	c.data[k] = slices.Grow(c.data[k], length-len(c.data[k]))[:length]
	c.size[k] = length
	c.currentSize += int64(length-old) * entrySize
}

func (c *Cache) truncate(k, length int) {
	old := c.size[k]
	if length >= old {
		return
	}
	if length > 0 {
		c.data[k] = slices.Clone(c.data[k][:length])
	} else {
		c.data[k] = nil
		c.lru.Remove(k)
	}
	c.size[k] = length
	c.currentSize -= int64(old-length) * entrySize
}

// purge evicts least recently used rows until the budget holds,
// stopping at the most recently used one.
func (c *Cache) purge() {
	if c.currentSize <= c.maxSize {
		return
	}
	var (
		front   = c.lru.Front()
		evicted int64
	)
	for k := range c.lru.Backward() {
		if c.currentSize <= c.maxSize || k == front {
			break
		}
		c.truncate(k, 0)
		evicted++
	}
	c.stats.Evictions += evicted
	c.log.Debugf("purged %d rows; size %d/%d bytes",
		evicted, c.currentSize, c.maxSize)
}

// SwapRR exchanges the indices holding ranks r1 and r2.
func (c *Cache) SwapRR(r1, r2 int) error {
	if err := validatePair("rank", r1, r2); err != nil {
		return err
	}
	c.ensure(1 + max(r1, r2))
	c.swap(c.r2i[r1], c.r2i[r2], r1, r2)
	return nil
}

// SwapII exchanges the ranks of indices i1 and i2.
func (c *Cache) SwapII(i1, i2 int) error {
	if err := validatePair("index", i1, i2); err != nil {
		return err
	}
	c.ensure(1 + max(i1, i2))
	c.swap(i1, i2, c.i2r[i1], c.i2r[i2])
	return nil
}

// SwapRI moves index i to rank r, and the index
// previously at rank r to the former rank of i.
func (c *Cache) SwapRI(r, i int) error {
	if r < 0 {
		return indexError("rank", r)
	}
	if i < 0 {
		return indexError("index", i)
	}
	c.ensure(1 + max(r, i))
	c.swap(c.r2i[r], i, r, c.i2r[i])
	return nil
}

func validatePair(what string, a, b int) error {
	if a < 0 {
		return indexError(what, a)
	}
	if b < 0 {
		return indexError(what, b)
	}
	return nil
}

// swap relabels index i1 (at rank r1) and i2 (at rank r2)
// in every cached row, then in the permutation.
// Columns that cannot be recovered from the diagonal
// or the other party's row are truncated away.
func (c *Cache) swap(i1, i2, r1, r2 int) {
	for k := range c.lru.All() {
		var (
			n   = c.size[k]
			rr  = c.i2r[k]
			row = c.data[k]
		)
		switch {
		case r1 < n && r2 < n:
			row[r1], row[r2] = row[r2], row[r1]
		case r1 < n:
			switch {
			case rr == r2:
				row[r1] = c.diag[k]
			case rr < c.size[i2] && rr != r1:
				row[r1] = c.data[i2][rr]
			default:
				c.truncate(k, r1)
			}
		case r2 < n:
			switch {
			case rr == r1:
				row[r2] = c.diag[k]
			case rr < c.size[i1] && rr != r2:
				row[r2] = c.data[i1][rr]
			default:
				c.truncate(k, r2)
			}
		}
	}
	c.r2i[r1], c.r2i[r2] = i2, i1
	c.i2r[i1], c.i2r[i2] = r2, r1
	if debugging {
		assert(c.i2r[c.r2i[r1]] == r1 && c.i2r[c.r2i[r2]] == r2,
			"rank permutation is not an inverse after swap")
	}
}
