package kernel

type (
	// Feature is one non-zero component of a [Vector].
	Feature struct {
		Index int
		Value float64
	}
	// Vector is a sparse vector sorted by feature index.
	Vector []Feature
)

// Dense builds a [Vector] from a dense slice, skipping zeros.
func Dense(values ...float64) Vector {
	v := make(Vector, 0, len(values))
	for i, value := range values {
		if value != 0 {
			v = append(v, Feature{Index: i, Value: value})
		}
	}
	return v
}

// Dot returns the inner product of x and y.
func Dot(x, y Vector) float64 {
	var (
		sum  float64
		i, j int
	)
	for i < len(x) && j < len(y) {
		switch {
		case x[i].Index == y[j].Index:
			sum += x[i].Value * y[j].Value
			i++
			j++
		case x[i].Index > y[j].Index:
			j++
		default:
			i++
		}
	}
	return sum
}

// SquaredNorm returns `Dot(v, v)`.
func (v Vector) SquaredNorm() float64 {
	var sum float64
	for _, f := range v {
		sum += f.Value * f.Value
	}
	return sum
}

// Dimension returns one past the largest feature index.
func (v Vector) Dimension() int {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1].Index + 1
}

func (v Vector) sorted() (int, bool) {
	for i := 1; i < len(v); i++ {
		if v[i].Index <= v[i-1].Index {
			return i, false
		}
	}
	return 0, true
}
