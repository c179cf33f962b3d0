package lasvm

import (
	"math"

	"github.com/ansel1/merry"
	"github.com/sirupsen/logrus"
)

type (
	// Solver runs the LASVM incremental SMO optimizer over the
	// examples of a [Cache]. Active examples occupy ranks `[0, l)`;
	// the working set (not shrunk) occupies `[0, s)`.
	// Constructed by [NewSolver].
	Solver struct {
		cache   *Cache
		log     logrus.FieldLogger
		onFatal func(error)
		err     error
		alpha, cmin,
		cmax, g []float64
		extremes stale[extremes]
		cp, cn   float64
		l, s     int
		bias     bool
	}

	// extremes is the most violating pair of the working set.
	// An index of -1 means no coordinate qualifies.
	extremes struct {
		gmin, gmax float64
		imin, imax int
	}

	// stale is a lazily recomputed value.
	stale[T any] struct {
		value T
		fresh bool
	}
)

const (
	// curvatureFloor separates flat directions from curved ones.
	// Curvatures at or below its negation mean the kernel is not positive.
	curvatureFloor = 1.1920928955078125e-07
	// gradientBound initializes the extremal search when the
	// equality constraint is honored.
	gradientBound = math.MaxFloat32
	// maxShrinkPeriod caps the iterations between shrink passes.
	maxShrinkPeriod = 1000
)

func (v *stale[T]) invalidate() { v.fresh = false }

func (v *stale[T]) get(compute func() T) T {
	if !v.fresh {
		v.value = compute()
		v.fresh = true
	}
	return v.value
}

// NewSolver binds a [Solver] to cache, with penalties cp and cn
// for positive and negative examples.
// Options: [WithBias], [WithLogger], [WithFatalHandler].
func NewSolver(cache *Cache, cp, cn float64, options ...Option) (*Solver, error) {
	if cache == nil {
		return nil, contractError(ErrInvalidArgument, "nil cache")
	}
	if !(cp > 0) || !(cn > 0) {
		return nil, contractError(ErrInvalidPenalty,
			"must be >0 but cp=%g cn=%g were given", cp, cn)
	}
	if cache.bound {
		return nil, contractError(ErrCacheBound, "NewSolver")
	}
	settings := gatherOptions(options)
	cache.bound = true
	return &Solver{
		cache:   cache,
		log:     settings.log.WithField("component", "lasvm"),
		onFatal: settings.onFatal,
		cp:      cp,
		cn:      cn,
		bias:    settings.bias,
	}, nil
}

// Close releases the cache so another solver may be bound to it.
func (s *Solver) Close() error {
	if s.cache != nil {
		s.cache.bound = false
		s.cache = nil
	}
	return nil
}

// fail poisons the solver with err.
func (s *Solver) fail(err error) error {
	if s.err == nil {
		s.err = err
		s.log.WithField("class", ErrorClass(err)).
			Errorf("solver poisoned: %v", err)
		if s.onFatal != nil {
			s.onFatal(err)
		}
	}
	return err
}

func (s *Solver) usable() error {
	if s.err != nil {
		return poisonedError(s.err)
	}
	if s.cache == nil {
		return contractError(ErrInvalidArgument, "solver is closed")
	}
	return nil
}

func (s *Solver) requireUnshrunk(operation string) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.s != s.l {
		return s.fail(contractError(ErrShrunk,
			"%s: working set %d != active set %d", operation, s.s, s.l))
	}
	return nil
}

// reserve makes room for n active examples.
func (s *Solver) reserve(n int) {
	if n <= len(s.alpha) {
		return
	}
	capacity := nextCapacity(len(s.alpha), n)
	s.alpha = extend(s.alpha, capacity)
	s.cmin = extend(s.cmin, capacity)
	s.cmax = extend(s.cmax, capacity)
	s.g = extend(s.g, capacity)
}

func (s *Solver) bounds(label float64) (float64, float64) {
	if label > 0 {
		return 0, s.cp
	}
	return -s.cn, 0
}

// label recovers the class of rank i from its box.
func (s *Solver) label(i int) float64 {
	if s.cmin[i] == 0 {
		return +1
	}
	return -1
}

// clamp absorbs rounding so a coefficient never leaves its box.
func (s *Solver) clamp(i int, alpha float64) float64 {
	return min(max(alpha, s.cmin[i]), s.cmax[i])
}

func (s *Solver) extremal() extremes {
	return s.extremes.get(s.computeExtremes)
}

func (s *Solver) computeExtremes() extremes {
	e := extremes{imin: -1, imax: -1}
	if s.bias {
		e.gmin, e.gmax = gradientBound, -gradientBound
	}
	for i, gi := range s.g[:s.s] {
		ai := s.alpha[i]
		if gi < e.gmin && ai > s.cmin[i] {
			e.imin, e.gmin = i, gi
		}
		if gi > e.gmax && ai < s.cmax[i] {
			e.imax, e.gmax = i, gi
		}
	}
	return e
}

func (s *Solver) row(rank, length int) ([]float64, error) {
	row, err := s.cache.QueryRow(s.cache.Index(rank), length)
	if err != nil {
		return nil, s.fail(err)
	}
	return row, nil
}

func (s *Solver) checkCurvature(curvature float64, rank int) error {
	if curvature+curvatureFloor <= 0 {
		index := s.cache.Index(rank)
		err := modelError(ErrNotPositive,
			"curvature %g at index %d", curvature, index)
		return s.fail(merry.WithValue(err, indexKey, index))
	}
	return nil
}

// step1 moves the coefficient at rank i (or the most violating
// one, if i < 0) as far as its box and curvature allow.
// It reports whether a step was taken.
func (s *Solver) step1(i int, epsilon float64) (bool, error) {
	e := s.extremal()
	if i < 0 {
		if e.gmin+e.gmax < 0 {
			i = e.imin
		} else {
			i = e.imax
		}
		if i < 0 {
			return false, nil
		}
	}
	var (
		g    = s.g[i]
		step float64
	)
	if g < 0 {
		step = s.alpha[i] - s.cmin[i]
		if e.gmax-g < epsilon {
			return false, nil
		}
	} else {
		step = s.cmax[i] - s.alpha[i]
		if g-e.gmin < epsilon {
			return false, nil
		}
	}
	length := s.s
	row, err := s.row(i, length)
	if err != nil {
		return false, err
	}
	curvature := row[i]
	if curvature >= curvatureFloor {
		step = min(step, math.Abs(g)/curvature)
	} else if err := s.checkCurvature(curvature, i); err != nil {
		return false, err
	}
	if g < 0 {
		step = -step
	}
	s.alpha[i] = s.clamp(i, s.alpha[i]+step)
	for j, k := range row[:length] {
		s.g[j] -= step * k
	}
	s.extremes.invalidate()
	return true, nil
}

// step2 moves the pair (imin, imax) along the equality constraint.
// Negative ranks are replaced by the current extremes.
// It reports whether a step was taken.
func (s *Solver) step2(imin, imax int, epsilon float64) (bool, error) {
	if imin < 0 || imax < 0 {
		e := s.extremal()
		if imin < 0 {
			imin = e.imin
		}
		if imax < 0 {
			imax = e.imax
		}
	}
	if imin < 0 || imax < 0 {
		return false, nil
	}
	gmin, gmax := s.g[imin], s.g[imax]
	if gmax-gmin < epsilon {
		return false, nil
	}
	step := min(
		s.alpha[imin]-s.cmin[imin],
		s.cmax[imax]-s.alpha[imax],
	)
	length := s.s
	rmin, err := s.row(imin, length)
	if err != nil {
		return false, err
	}
	rmax, err := s.row(imax, length)
	if err != nil {
		return false, err
	}
	curvature := rmax[imax] + rmin[imin] - rmax[imin] - rmin[imax]
	if curvature >= curvatureFloor {
		step = min(step, (gmax-gmin)/curvature)
	} else if err := s.checkCurvature(curvature, imax); err != nil {
		return false, err
	}
	s.alpha[imax] = s.clamp(imax, s.alpha[imax]+step)
	s.alpha[imin] = s.clamp(imin, s.alpha[imin]-step)
	for j := range length {
		s.g[j] -= step * (rmax[j] - rmin[j])
	}
	s.extremes.invalidate()
	return true, nil
}

// optimize takes one step against the most violating coordinates.
func (s *Solver) optimize(epsilon float64) (bool, error) {
	if s.bias {
		return s.step2(-1, -1, epsilon)
	}
	return s.step1(-1, epsilon)
}

// swap exchanges ranks r1 and r2 in the cache and in the solver.
func (s *Solver) swap(r1, r2 int) error {
	if err := s.cache.SwapRR(r1, r2); err != nil {
		return s.fail(err)
	}
	s.alpha[r1], s.alpha[r2] = s.alpha[r2], s.alpha[r1]
	s.cmin[r1], s.cmin[r2] = s.cmin[r2], s.cmin[r1]
	s.cmax[r1], s.cmax[r2] = s.cmax[r2], s.cmax[r1]
	s.g[r1], s.g[r2] = s.g[r2], s.g[r1]
	if e := &s.extremes.value; s.extremes.fresh {
		e.imin = swapped(e.imin, r1, r2)
		e.imax = swapped(e.imax, r1, r2)
	}
	return nil
}

func swapped(i, r1, r2 int) int {
	switch i {
	case r1:
		return r2
	case r2:
		return r1
	default:
		return i
	}
}

// irrelevant reports whether rank i sits on its bound at
// zero with a gradient that keeps it there.
func (s *Solver) irrelevant(i int, gmin, gmax float64) bool {
	return s.alpha[i] == 0 &&
		((s.g[i] >= gmax && 0 >= s.cmax[i]) ||
			(s.g[i] <= gmin && 0 <= s.cmin[i]))
}

// evict removes irrelevant examples from the active set.
func (s *Solver) evict() error {
	var gmin, gmax float64
	if s.bias {
		e := s.extremal()
		gmin, gmax = e.gmin, e.gmax
	}
	l := s.l
	for i := 0; i < l; i++ {
		if !s.irrelevant(i, gmin, gmax) {
			continue
		}
		l--
		if err := s.swap(i, l); err != nil {
			return err
		}
		i--
	}
	if l != s.l {
		s.log.Debugf("evicted %d examples", s.l-l)
		s.extremes.invalidate()
	}
	s.l, s.s = l, l
	return nil
}

// Process admits example into the active set and optimizes
// around it. It returns the new active count, or 0 if the
// example was rejected.
func (s *Solver) Process(example int, label float64) (int, error) {
	if err := s.requireUnshrunk("Process"); err != nil {
		return 0, err
	}
	if example < 0 {
		return 0, s.fail(indexError("example", example))
	}
	if label != +1 && label != -1 {
		return 0, s.fail(contractError(ErrInvalidLabel,
			"must be +1 or -1 but %g was given", label))
	}
	l := s.l
	if s.cache.Rank(example) < l {
		return l, nil
	}
	g := label
	if l > 0 {
		row, err := s.cache.QueryRow(example, l)
		if err != nil {
			return 0, s.fail(err)
		}
		for j, k := range row {
			g -= s.alpha[j] * k
		}
	}
	if s.rejects(label, g) {
		if err := s.cache.DiscardRow(example); err != nil {
			return 0, s.fail(err)
		}
		return 0, nil
	}
	s.reserve(l + 1)
	if err := s.cache.SwapRI(l, example); err != nil {
		return 0, s.fail(err)
	}
	s.alpha[l] = 0
	s.g[l] = g
	s.cmin[l], s.cmax[l] = s.bounds(label)
	s.l, s.s = l+1, l+1
	s.extremes.invalidate()
	var err error
	switch {
	case !s.bias:
		_, err = s.step1(l, 0)
	case label > 0:
		_, err = s.step2(-1, l, 0)
	default:
		_, err = s.step2(l, -1, 0)
	}
	if err != nil {
		return 0, err
	}
	return s.l, nil
}

// rejects reports whether a candidate with gradient g
// would provably keep a zero coefficient.
func (s *Solver) rejects(label, g float64) bool {
	if !s.bias {
		return label*g < 0
	}
	e := s.extremal()
	return e.gmin < e.gmax &&
		((label > 0 && g < e.gmin) ||
			(label < 0 && g > e.gmax))
}

// Reprocess takes one optimization step if the violation is at
// least epsilon, then evicts irrelevant examples.
// It returns the active count if a step was taken, 0 otherwise.
func (s *Solver) Reprocess(epsilon float64) (int, error) {
	if err := s.requireUnshrunk("Reprocess"); err != nil {
		return 0, err
	}
	stepped, err := s.optimize(epsilon)
	if err != nil {
		return 0, err
	}
	if err := s.evict(); err != nil {
		return 0, err
	}
	if stepped {
		return s.l, nil
	}
	return 0, nil
}

// shrink moves saturated examples out of the working set.
func (s *Solver) shrink() error {
	var gmin, gmax float64
	if s.bias {
		e := s.extremal()
		gmin, gmax = e.gmin, e.gmax
	}
	n := s.s
	for i := 0; i < n; i++ {
		saturated := (s.g[i] >= gmax && s.alpha[i] >= s.cmax[i]) ||
			(s.g[i] <= gmin && s.alpha[i] <= s.cmin[i])
		if !saturated {
			continue
		}
		n--
		if err := s.swap(i, n); err != nil {
			return err
		}
		i--
	}
	if n != s.s {
		s.log.Debugf("shrunk working set to %d of %d", n, s.l)
		s.extremes.invalidate()
	}
	s.s = n
	return nil
}

// unshrink recomputes the gradients of shrunk examples
// and restores the working set to the whole active set.
func (s *Solver) unshrink() error {
	l, n := s.l, s.s
	if n >= l {
		return nil
	}
	for i := n; i < l; i++ {
		s.g[i] = s.label(i)
	}
	for j := range l {
		a := s.alpha[j]
		if a == 0 {
			continue
		}
		var (
			index  = s.cache.Index(j)
			cached = s.cache.StatusRow(index)
		)
		row, err := s.cache.QueryRow(index, l)
		if err != nil {
			return s.fail(err)
		}
		for i := n; i < l; i++ {
			s.g[i] -= a * row[i]
		}
		if cached == 0 {
			if err := s.cache.DiscardRow(index); err != nil {
				return s.fail(err)
			}
		}
	}
	s.extremes.invalidate()
	s.s = l
	return nil
}

// Finish optimizes until no step reduces the violation below
// epsilon, shrinking saturated examples along the way.
// It returns the number of steps taken.
func (s *Solver) Finish(epsilon float64) (int, error) {
	if err := s.requireUnshrunk("Finish"); err != nil {
		return 0, err
	}
	var iterations int
	for round := 1; ; round++ {
		steps, err := s.finishRound(epsilon)
		iterations += steps
		if err != nil {
			return iterations, err
		}
		delta := s.Delta()
		s.log.Debugf("finish round %d: %d steps, %d active, delta %g",
			round, steps, s.l, delta)
		if steps == 0 || !(delta > epsilon) {
			return iterations, nil
		}
	}
}

func (s *Solver) finishRound(epsilon float64) (int, error) {
	var iterations, nextShrink int
	for {
		if iterations >= nextShrink {
			if err := s.shrink(); err != nil {
				return iterations, err
			}
			nextShrink = iterations + min(maxShrinkPeriod, s.l)
		}
		stepped, err := s.optimize(epsilon)
		if err != nil {
			return iterations, err
		}
		if !stepped {
			break
		}
		iterations++
	}
	if err := s.unshrink(); err != nil {
		return iterations, err
	}
	return iterations, s.evict()
}
