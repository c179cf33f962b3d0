// Package lasvm implements the computational core of an online
// support vector machine: a kernel row [Cache] and the LASVM
// incremental SMO [Solver] that consumes it.
//
// The following is a summary (intended for maintainers)
// of the [LASVM paper] as it applies to this package.
//
// Glossary and invariants:
//
//   - Index
//
//     Identifier of an example, as understood by the [Kernel].
//
//   - Rank
//
//     Position of an index in the cache's permutation.
//     Rows are stored in rank order, so the solver can keep
//     its active examples packed at ranks `[0, l)`.
//
//     i2r and r2i are mutual inverses after every operation.
//
//   - Row
//
//     `row[i][r] = K(i, Index(r))` for r below the cached length of i.
//     A row of length 0 is not linked into the recency list.
//
//   - Active set
//
//     Ranks `[0, l)`: examples with a coefficient alpha,
//     a box `[cmin, cmax]` and a gradient g.
//     `cmin <= alpha <= cmax` always holds.
//
//   - Working set
//
//     Ranks `[0, s)`, `s <= l`. Examples in `[s, l)` are shrunk:
//     excluded from optimization but not evicted.
//     `s == l` outside of [Solver.Finish].
//
//   - Curvature
//
//     `K[i,i] + K[j,j] - 2K[i,j]`, bounding a pairwise step.
//     A negative curvature means the kernel is not positive.
//
// Operations:
//
//   - PROCESS ([Solver.Process])
//
//     Computes the gradient of a new example, inserts it at rank l
//     unless it provably keeps a zero coefficient, and takes one step.
//
//   - REPROCESS ([Solver.Reprocess])
//
//     One step on the most violating pair, then eviction of
//     examples pinned at zero.
//
//   - FINISH ([Solver.Finish])
//
//     Repeated steps with periodic shrinking, then unshrinking
//     (gradient recomputation for shrunk examples) and eviction.
//
// Cache budget:
//
//   - Rows are extended on demand, reusing transposed entries when
//     the other row already covers this index's rank.
//
//   - When the budget is exceeded, rows are evicted from the least
//     recently used end; the most recently used row is never evicted.
//
// Errors:
//
// Misuse (bad indices, labels, ordering) and model failures
// (a non-positive kernel) are errors; see [ErrorClass].
// Either kind poisons a [Solver]: training must not continue after it.
// The solver panics on the first one unless [WithFatalHandler]
// installs a handler that returns.
//
// [LASVM paper]: https://leon.bottou.org/publications/pdf/jmlr-2005.pdf
package lasvm
