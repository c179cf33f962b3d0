package lasvm

import (
	"slices"
)

// Snapshot is a copy of the solver's active set,
// in rank order. Produced by [Solver.Snapshot] and
// consumed by [Solver.Init].
type Snapshot struct {
	// Indices are the example indices of the active set.
	Indices []int
	// Alpha are the signed coefficients:
	// positive for positive examples and negative otherwise.
	Alpha []float64
	// Gradients are optional. When nil, [Solver.Init]
	// recomputes them from the kernel.
	Gradients []float64
	// Labels are optional. When nil, [Solver.Init] infers
	// each label from the sign of its coefficient, which
	// is impossible for zero coefficients.
	Labels []float64
}

// ActiveCount returns the number of active examples.
func (s *Solver) ActiveCount() int { return s.l }

// Penalties returns the box bounds for positive and negative examples.
func (s *Solver) Penalties() (cp, cn float64) { return s.cp, s.cn }

// Alpha returns a copy of the active coefficients, in rank order.
func (s *Solver) Alpha() []float64 { return slices.Clone(s.alpha[:s.l]) }

// Gradients returns a copy of the active gradients, in rank order.
func (s *Solver) Gradients() []float64 { return slices.Clone(s.g[:s.l]) }

// SupportVectors returns the example indices of the active set, in rank order.
func (s *Solver) SupportVectors() []int {
	indices := make([]int, s.l)
	if s.cache == nil {
		return indices[:0]
	}
	for r := range indices {
		indices[r] = s.cache.Index(r)
	}
	return indices
}

// Bias returns the threshold b of the decision function
// `Σ alpha_i K(x, x_i) - b`. It is 0 without the equality constraint.
func (s *Solver) Bias() float64 {
	if !s.bias {
		return 0
	}
	e := s.extremal()
	return -(e.gmax + e.gmin) / 2
}

// Delta returns the largest violation a [Solver.Reprocess]
// could still exploit. Reprocessing with an epsilon larger
// than delta does nothing.
func (s *Solver) Delta() float64 {
	e := s.extremal()
	return max(0, e.gmax-e.gmin)
}

// Objective returns the value of the dual objective function.
func (s *Solver) Objective() float64 {
	var sum float64
	for i, a := range s.alpha[:s.l] {
		switch {
		case a > 0:
			sum += a * (s.g[i] + 1)
		case a < 0:
			sum += a * (s.g[i] - 1)
		}
	}
	return sum / 2
}

// Predict returns the decision value for example, caching its row.
func (s *Solver) Predict(example int) (float64, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	row, err := s.cache.QueryRow(example, s.l)
	if err != nil {
		return 0, s.fail(err)
	}
	var sum float64
	for j, k := range row {
		sum += s.alpha[j] * k
	}
	return sum - s.Bias(), nil
}

// PredictNoCache is like [Solver.Predict] but does not keep
// the row of example resident unless it already was.
func (s *Solver) PredictNoCache(example int) (float64, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	cached := s.cache.StatusRow(example)
	value, err := s.Predict(example)
	if err != nil {
		return 0, err
	}
	if cached == 0 {
		if err := s.cache.DiscardRow(example); err != nil {
			return 0, s.fail(err)
		}
	}
	return value, nil
}

// Snapshot copies the active set, including labels.
func (s *Solver) Snapshot() Snapshot {
	labels := make([]float64, s.l)
	for i := range labels {
		labels[i] = s.label(i)
	}
	return Snapshot{
		Indices:   s.SupportVectors(),
		Alpha:     s.Alpha(),
		Gradients: s.Gradients(),
		Labels:    labels,
	}
}

// Init replaces the active set with snap.
// Entries whose label cannot be inferred (zero coefficient
// and no label) are skipped and their indices returned.
func (s *Solver) Init(snap Snapshot) (dropped []int, err error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if err := s.validateSnapshot(snap); err != nil {
		return nil, s.fail(err)
	}
	s.reserve(len(snap.Indices))
	var k int
	for i, index := range snap.Indices {
		a := snap.Alpha[i]
		label, known := snapshotLabel(snap, i)
		if !known {
			dropped = append(dropped, index)
			continue
		}
		if err := s.cache.SwapRI(k, index); err != nil {
			return nil, s.fail(err)
		}
		s.alpha[k] = a
		s.cmin[k], s.cmax[k] = s.bounds(label)
		s.g[k] = label
		if snap.Gradients != nil {
			s.g[k] = snap.Gradients[i]
		}
		k++
	}
	if snap.Gradients == nil {
		for i := range k {
			row, err := s.cache.QueryRow(s.cache.Index(i), k)
			if err != nil {
				return nil, s.fail(err)
			}
			for j, kij := range row {
				s.g[i] -= s.alpha[j] * kij
			}
		}
	}
	s.l, s.s = k, k
	s.extremes.invalidate()
	if len(dropped) > 0 {
		s.log.Warnf("init: dropped %d zero coefficients with unknown labels",
			len(dropped))
	}
	return dropped, nil
}

func snapshotLabel(snap Snapshot, i int) (float64, bool) {
	switch a := snap.Alpha[i]; {
	case snap.Labels != nil:
		return snap.Labels[i], true
	case a > 0:
		return +1, true
	case a < 0:
		return -1, true
	default:
		return 0, false
	}
}

func (s *Solver) validateSnapshot(snap Snapshot) error {
	n := len(snap.Indices)
	switch {
	case n == 0:
		return contractError(ErrInvalidArgument, "empty snapshot")
	case len(snap.Alpha) != n:
		return contractError(ErrInvalidArgument,
			"%d coefficients for %d indices", len(snap.Alpha), n)
	case snap.Gradients != nil && len(snap.Gradients) != n:
		return contractError(ErrInvalidArgument,
			"%d gradients for %d indices", len(snap.Gradients), n)
	case snap.Labels != nil && len(snap.Labels) != n:
		return contractError(ErrInvalidArgument,
			"%d labels for %d indices", len(snap.Labels), n)
	}
	seen := make(map[int]struct{}, n)
	for i, index := range snap.Indices {
		if index < 0 {
			return indexError("index", index)
		}
		if _, dup := seen[index]; dup {
			return contractError(ErrInvalidArgument, "duplicate index %d", index)
		}
		seen[index] = struct{}{}
		label, known := snapshotLabel(snap, i)
		if !known {
			continue
		}
		if label != +1 && label != -1 {
			return contractError(ErrInvalidLabel,
				"must be +1 or -1 but %g was given", label)
		}
		if low, high := s.bounds(label); snap.Alpha[i] < low || snap.Alpha[i] > high {
			return contractError(ErrInvalidArgument,
				"coefficient %g of index %d outside [%g, %g]",
				snap.Alpha[i], index, low, high)
		}
	}
	return nil
}
