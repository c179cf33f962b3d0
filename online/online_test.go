package online_test

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/djdv/go-lasvm"
	"github.com/djdv/go-lasvm/kernel"
	"github.com/djdv/go-lasvm/online"
)

const (
	rngSeed  = 1
	examples = 60
	seeded   = 10 // Five of each class.
)

// clusters draws two well separated blobs, alternating labels.
func clusters(n int) ([]kernel.Vector, []float64) {
	var (
		rng    = rand.New(rand.NewSource(rngSeed))
		points = make([]kernel.Vector, n)
		labels = make([]float64, n)
	)
	for i := range n {
		label := float64(1 - 2*(i%2))
		labels[i] = label
		points[i] = kernel.Dense(
			3*label+rng.NormFloat64()/2,
			rng.NormFloat64()/2,
		)
	}
	return points, labels
}

func newSolver(tb testing.TB, points []kernel.Vector) *lasvm.Solver {
	tb.Helper()
	m, err := kernel.NewMatrix(points, kernel.Params{Type: kernel.RBF, Gamma: 0.5})
	require.NoError(tb, err)
	cache, err := lasvm.NewCache(m.Eval)
	require.NoError(tb, err)
	solver, err := lasvm.NewSolver(cache, 10, 10)
	require.NoError(tb, err)
	tb.Cleanup(func() { solver.Close() })
	return solver
}

func quietConfig() (online.Config, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	cfg := online.DefaultConfig()
	cfg.Logger = logger
	return cfg, hook
}

func checkClassified(tb testing.TB, solver *lasvm.Solver, labels []float64) {
	tb.Helper()
	for i, y := range labels {
		f, err := solver.Predict(i)
		require.NoError(tb, err)
		require.Positive(tb, y*f, "example %d: f=%g", i, f)
	}
}

func TestTrain(t *testing.T) {
	t.Run("invalid config", invalidConfig)
	t.Run("selection", selection)
	t.Run("epochs", epochs)
	t.Run("single limit", singleLimit)
	t.Run("checkpoints", checkpoints)
	t.Run("checkpoint error", checkpointError)
	t.Run("support vector limit", supportVectorLimit)
}

func invalidConfig(t *testing.T) {
	t.Parallel()
	points, labels := clusters(examples)
	for _, tc := range []struct {
		name   string
		modify func(*online.Config)
		labels []float64
		want   error
	}{
		{"no labels", func(*online.Config) {}, []float64{}, online.ErrInvalidConfig},
		{"epochs", func(c *online.Config) { c.Epochs = 0 }, labels, online.ErrInvalidConfig},
		{"candidates", func(c *online.Config) { c.Candidates = 0 }, labels, online.ErrInvalidConfig},
		{"epsilon", func(c *online.Config) { c.Epsilon = 0 }, labels, online.ErrInvalidConfig},
		{"selection", func(c *online.Config) { c.Selection = 7 }, labels, online.ErrInvalidConfig},
		{"termination", func(c *online.Config) { c.Termination = -1 }, labels, online.ErrInvalidConfig},
		{"label", func(*online.Config) {}, []float64{1, -1, 0.5}, lasvm.ErrInvalidLabel},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, _ := quietConfig()
			tc.modify(&cfg)
			_, err := online.Train(newSolver(t, points), tc.labels, cfg)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func selection(t *testing.T) {
	t.Parallel()
	points, labels := clusters(examples)
	for _, strategy := range []online.Selection{online.Random, online.Gradient, online.Margin} {
		t.Run(strategy.String(), func(t *testing.T) {
			var (
				solver   = newSolver(t, points)
				cfg, log = quietConfig()
			)
			cfg.Selection = strategy
			cfg.Candidates = 5
			model, err := online.Train(solver, labels, cfg)
			require.NoError(t, err)
			require.Equal(t, examples-seeded, model.Processed)
			require.NotEmpty(t, model.SupportVectors)
			require.Len(t, model.Alpha, len(model.SupportVectors))
			require.Equal(t, solver.SupportVectors(), model.SupportVectors)
			require.Equal(t, solver.Objective(), model.Objective)
			require.Positive(t, model.Objective)
			require.LessOrEqual(t, solver.Delta(), cfg.Epsilon)
			checkClassified(t, solver, labels)
			require.True(t, logged(log, "epoch 1"))
		})
	}
}

func epochs(t *testing.T) {
	t.Parallel()
	var (
		points, labels = clusters(examples)
		solver         = newSolver(t, points)
		cfg, _         = quietConfig()
	)
	cfg.Epochs = 2
	cfg.Finishing = false
	model, err := online.Train(solver, labels, cfg)
	require.NoError(t, err)
	require.Equal(t, examples-seeded+examples, model.Processed)
	require.Zero(t, model.Iterations)
	checkClassified(t, solver, labels)
}

func singleLimit(t *testing.T) {
	t.Parallel()
	var (
		points, labels = clusters(examples)
		solver         = newSolver(t, points)
		cfg, log       = quietConfig()
		calls          int
	)
	cfg.Limits = []float64{15}
	cfg.Checkpoint = func(online.Model) error { calls++; return nil }
	model, err := online.Train(solver, labels, cfg)
	require.NoError(t, err)
	require.Equal(t, 15, model.Processed)
	require.Zero(t, calls, "a single limit only stops training")
	require.True(t, logged(log, "stopped early"))
}

func checkpoints(t *testing.T) {
	t.Parallel()
	var (
		points, labels = clusters(examples)
		solver         = newSolver(t, points)
		cfg, _         = quietConfig()
		models         []online.Model
	)
	cfg.Limits = []float64{20, 10, 30}
	cfg.Checkpoint = func(model online.Model) error {
		models = append(models, model)
		return nil
	}
	final, err := online.Train(solver, labels, cfg)
	require.NoError(t, err)
	require.Len(t, models, 3)
	for i, model := range models {
		require.Equal(t, 10*(i+1), model.Processed)
		require.NotEmpty(t, model.SupportVectors)
	}
	require.Equal(t, 30, final.Processed)
}

func checkpointError(t *testing.T) {
	t.Parallel()
	var (
		points, labels = clusters(examples)
		solver         = newSolver(t, points)
		cfg, _         = quietConfig()
		stop           = errors.New("stop")
	)
	cfg.Limits = []float64{5, 50}
	cfg.Checkpoint = func(online.Model) error { return stop }
	_, err := online.Train(solver, labels, cfg)
	require.ErrorIs(t, err, stop)
}

func supportVectorLimit(t *testing.T) {
	t.Parallel()
	var (
		points, labels = clusters(examples)
		solver         = newSolver(t, points)
		cfg, _         = quietConfig()
	)
	cfg.Termination = online.SupportVectors
	cfg.Limits = []float64{1}
	model, err := online.Train(solver, labels, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, model.Processed, "the seeds already exceed the limit")
}

func logged(hook *test.Hook, substring string) bool {
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, substring) {
			return true
		}
	}
	return false
}
