// Package kernel provides sparse vectors and the classic
// SVM kernels, exposed as a kernel function over example indices.
package kernel

import (
	"fmt"
	"math"
	"strings"
)

// Type selects a kernel function.
type Type int

const (
	// Linear is `u'v`.
	Linear Type = iota
	// Polynomial is `(gamma u'v + coef0)^degree`.
	Polynomial
	// RBF is `exp(-gamma |u-v|^2)`.
	RBF
	// Sigmoid is `tanh(gamma u'v + coef0)`.
	Sigmoid
)

var typeNames = [...]string{
	Linear:     "linear",
	Polynomial: "polynomial",
	RBF:        "rbf",
	Sigmoid:    "sigmoid",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType returns the [Type] named s.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(s, name) {
			return Type(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Params configures a kernel function.
type Params struct {
	Type   Type
	Degree float64
	// Gamma <= 0 is replaced by 1/dimension in [NewMatrix].
	Gamma float64
	Coef0 float64
}

// DefaultParams returns an RBF kernel with automatic gamma.
func DefaultParams() Params {
	return Params{Type: RBF, Degree: 3}
}

// Matrix evaluates a kernel between examples of a fixed set.
// Concurrent access must be guarded by the caller.
type Matrix struct {
	x           []Vector
	norms       []float64
	params      Params
	evaluations int64
}

// NewMatrix validates x and prepares kernel evaluation over it.
func NewMatrix(x []Vector, params Params) (*Matrix, error) {
	if len(x) == 0 {
		return nil, ErrNoExamples
	}
	if params.Type < Linear || params.Type > Sigmoid {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, params.Type)
	}
	var dimension int
	for i, v := range x {
		if position, ok := v.sorted(); !ok {
			return nil, unsortedError(i, position)
		}
		dimension = max(dimension, v.Dimension())
	}
	if params.Gamma <= 0 {
		params.Gamma = 1 / float64(max(dimension, 1))
	}
	m := &Matrix{x: x, params: params}
	if params.Type == RBF {
		m.norms = make([]float64, len(x))
		for i, v := range x {
			m.norms[i] = v.SquaredNorm()
		}
	}
	return m, nil
}

// Len returns the number of examples.
func (m *Matrix) Len() int { return len(m.x) }

// Params returns the parameters in use, with gamma resolved.
func (m *Matrix) Params() Params { return m.params }

// Evaluations returns the number of calls to [Matrix.Eval].
func (m *Matrix) Evaluations() int64 { return m.evaluations }

// Eval returns the kernel value between examples i and j.
func (m *Matrix) Eval(i, j int) float64 {
	m.evaluations++
	var (
		p   = m.params
		dot = Dot(m.x[i], m.x[j])
	)
	switch p.Type {
	case Linear:
		return dot
	case Polynomial:
		return math.Pow(p.Gamma*dot+p.Coef0, p.Degree)
	case RBF:
		return math.Exp(-p.Gamma * (m.norms[i] + m.norms[j] - 2*dot))
	case Sigmoid:
		return math.Tanh(p.Gamma*dot + p.Coef0)
	}
	return 0
}
