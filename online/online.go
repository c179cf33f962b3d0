// Package online drives a [lasvm.Solver] through the online
// LASVM training schedule: balanced seeding, candidate selection,
// PROCESS/REPROCESS steps over one or more epochs, and an optional
// finishing step.
package online

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/djdv/go-lasvm"
)

type (
	// Selection picks the next example to process.
	Selection int
	// Termination selects what [Config.Limits] count.
	Termination int

	// Config controls [Train]. Start from [DefaultConfig].
	Config struct {
		// Logger receives progress at info level
		// and per-step detail at debug level.
		Logger logrus.FieldLogger
		// Checkpoint, if set, receives a finished model each
		// time one of several limits is reached; training then
		// resumes from the unfinished state.
		Checkpoint func(Model) error
		// Limits are thresholds for early stopping; see [Termination].
		// Training stops when every limit has been reached.
		Limits      []float64
		Selection   Selection
		Termination Termination
		Epochs      int
		// Candidates is the sample size of the
		// gradient and margin selection strategies.
		Candidates int
		// SeedPerClass examples of each class are processed
		// first, to balance the initial active set.
		SeedPerClass int
		// Seed makes the selection reproducible.
		Seed int64
		// Epsilon is the gradient tolerance.
		Epsilon float64
		// DeltaMax controls REPROCESS: above 1000 it is never
		// called, at 1000 it is called once per step, below 1000
		// it is repeated while the violation exceeds DeltaMax.
		DeltaMax float64
		// Finishing runs [lasvm.Solver.Finish] at the end.
		Finishing bool
	}

	// Model is the state of a solver after training.
	Model struct {
		SupportVectors []int
		Alpha          []float64
		Bias           float64
		Objective      float64
		// Processed is the number of selected examples.
		Processed int
		// Iterations is the number of finishing steps.
		Iterations int
	}
)

const (
	// Random picks uniformly among unseen examples.
	Random Selection = iota
	// Gradient picks the candidate with the smallest `y f(x)`.
	Gradient
	// Margin picks the candidate closest to the decision boundary.
	Margin
)

const (
	// Iterations counts processed examples.
	Iterations Termination = iota
	// SupportVectors counts active examples.
	SupportVectors
	// Duration counts seconds of training.
	Duration
)

const (
	// singleReprocess is the DeltaMax value that
	// means exactly one REPROCESS per step.
	singleReprocess = 1000
	progressPeriod  = 100
)

func (s Selection) String() string {
	switch s {
	case Random:
		return "random"
	case Gradient:
		return "gradient"
	case Margin:
		return "margin"
	default:
		return fmt.Sprintf("Selection(%d)", int(s))
	}
}

// DefaultConfig returns one epoch of random selection with finishing.
func DefaultConfig() Config {
	return Config{
		Selection:    Random,
		Termination:  Iterations,
		Epochs:       1,
		Candidates:   50,
		SeedPerClass: 5,
		Seed:         1,
		Epsilon:      1e-3,
		DeltaMax:     singleReprocess,
		Finishing:    true,
	}
}

func (cfg *Config) validate(labels []float64) error {
	switch {
	case len(labels) == 0:
		return fmt.Errorf("%w: no labels", ErrInvalidConfig)
	case cfg.Epochs < 1:
		return fmt.Errorf("%w: epochs must be >=1 but %d was given",
			ErrInvalidConfig, cfg.Epochs)
	case cfg.Candidates < 1:
		return fmt.Errorf("%w: candidates must be >=1 but %d was given",
			ErrInvalidConfig, cfg.Candidates)
	case !(cfg.Epsilon > 0):
		return fmt.Errorf("%w: epsilon must be >0 but %g was given",
			ErrInvalidConfig, cfg.Epsilon)
	case cfg.Selection < Random || cfg.Selection > Margin:
		return fmt.Errorf("%w: %v", ErrInvalidConfig, cfg.Selection)
	case cfg.Termination < Iterations || cfg.Termination > Duration:
		return fmt.Errorf("%w: termination %d", ErrInvalidConfig, cfg.Termination)
	}
	for i, y := range labels {
		if y != +1 && y != -1 {
			return fmt.Errorf("%w: label %g of example %d",
				lasvm.ErrInvalidLabel, y, i)
		}
	}
	if cfg.Logger == nil {
		log := logrus.New()
		log.SetLevel(logrus.WarnLevel)
		cfg.Logger = log
	}
	return nil
}

type trainer struct {
	solver  *lasvm.Solver
	labels  []float64
	cfg     Config
	log     logrus.FieldLogger
	rng     *rand.Rand
	unseen  []int
	limits  []float64
	started time.Time
	// checkpoints is set when more than one limit was given.
	checkpoints bool
	processed   int
}

// Train runs the online schedule over the examples `0..len(labels)`,
// whose kernel the solver's cache already evaluates.
func Train(solver *lasvm.Solver, labels []float64, cfg Config) (Model, error) {
	if err := cfg.validate(labels); err != nil {
		return Model{}, err
	}
	t := &trainer{
		solver:      solver,
		labels:      labels,
		cfg:         cfg,
		log:         cfg.Logger.WithField("component", "online"),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		limits:      slices.Clone(cfg.Limits),
		checkpoints: len(cfg.Limits) > 1,
		started:     time.Now(),
	}
	if err := t.run(); err != nil {
		return Model{}, err
	}
	return t.finish()
}

func (t *trainer) resetUnseen() {
	t.unseen = t.unseen[:0]
	for i := range t.labels {
		t.unseen = append(t.unseen, i)
	}
}

func (t *trainer) run() error {
	t.resetUnseen()
	if err := t.seed(); err != nil {
		return err
	}
	for epoch := range t.cfg.Epochs {
		for range t.labels {
			if len(t.unseen) == 0 {
				break
			}
			stop, err := t.step()
			if err != nil {
				return err
			}
			if stop {
				t.log.Infof("stopped early after %d examples", t.processed)
				return nil
			}
		}
		t.log.Infof("epoch %d: %d processed, %d active",
			epoch+1, t.processed, t.solver.ActiveCount())
		t.resetUnseen()
	}
	return nil
}

// seed processes the first examples of each class.
func (t *trainer) seed() error {
	var positives, negatives int
	for _, example := range slices.Clone(t.unseen) {
		if positives >= t.cfg.SeedPerClass && negatives >= t.cfg.SeedPerClass {
			break
		}
		counter := &negatives
		if t.labels[example] > 0 {
			counter = &positives
		}
		if *counter >= t.cfg.SeedPerClass {
			continue
		}
		if _, err := t.solver.Process(example, t.labels[example]); err != nil {
			return err
		}
		*counter++
		t.markSeen(example)
	}
	return nil
}

func (t *trainer) markSeen(example int) {
	if at := slices.Index(t.unseen, example); at >= 0 {
		t.take(at)
	}
}

// take removes position at from the unseen pool and returns its example.
func (t *trainer) take(at int) int {
	var (
		last    = len(t.unseen) - 1
		example = t.unseen[at]
	)
	t.unseen[at] = t.unseen[last]
	t.unseen = t.unseen[:last]
	return example
}

func (t *trainer) step() (bool, error) {
	example, err := t.selectExample()
	if err != nil {
		return false, err
	}
	active, err := t.solver.Process(example, t.labels[example])
	if err != nil {
		return false, err
	}
	t.processed++
	reprocessed, err := t.reprocess()
	if err != nil {
		return false, err
	}
	t.log.WithFields(logrus.Fields{
		"example":     example,
		"process":     active,
		"reprocessed": reprocessed,
	}).Debug("step")
	if t.processed%progressPeriod == 0 {
		t.log.Infof("%d processed, %d active", t.processed, t.solver.ActiveCount())
	}
	return t.checkLimits()
}

func (t *trainer) reprocess() (int, error) {
	deltaMax := t.cfg.DeltaMax
	if deltaMax > singleReprocess {
		return 0, nil
	}
	var count int
	for {
		stepped, err := t.solver.Reprocess(t.cfg.Epsilon)
		if err != nil {
			return count, err
		}
		count++
		if stepped == 0 || deltaMax >= singleReprocess ||
			!(t.solver.Delta() > deltaMax) {
			return count, nil
		}
	}
}

func (t *trainer) selectExample() (int, error) {
	if t.cfg.Selection == Random {
		return t.take(t.rng.Intn(len(t.unseen))), nil
	}
	var (
		candidates = min(t.cfg.Candidates, len(t.unseen))
		best       = math.Inf(1)
		chosen     int
	)
	for range candidates {
		at := t.rng.Intn(len(t.unseen))
		example := t.unseen[at]
		value, err := t.solver.PredictNoCache(example)
		if err != nil {
			return 0, err
		}
		switch t.cfg.Selection {
		case Gradient:
			value *= t.labels[example]
		case Margin:
			value = math.Abs(value)
		}
		if value < best {
			best, chosen = value, at
		}
	}
	return t.take(chosen), nil
}

func (t *trainer) measure() float64 {
	switch t.cfg.Termination {
	case SupportVectors:
		return float64(t.solver.ActiveCount())
	case Duration:
		return time.Since(t.started).Seconds()
	default:
		return float64(t.processed)
	}
}

// checkLimits removes reached limits, checkpointing each one
// when several were given. It reports whether all were reached.
func (t *trainer) checkLimits() (bool, error) {
	if len(t.limits) == 0 {
		return false, nil
	}
	measured := t.measure()
	for i := 0; i < len(t.limits); i++ {
		if measured < t.limits[i] {
			continue
		}
		if t.checkpoints {
			if err := t.checkpoint(); err != nil {
				return false, err
			}
		}
		t.limits = slices.Delete(t.limits, i, i+1)
		i--
	}
	return len(t.limits) == 0, nil
}

// checkpoint finishes a copy of the current state,
// hands it out, and restores the unfinished state.
func (t *trainer) checkpoint() error {
	if t.cfg.Checkpoint == nil {
		return nil
	}
	snap := t.solver.Snapshot()
	model, err := t.finish()
	if err != nil {
		return err
	}
	t.log.Infof("checkpoint after %d examples: %d support vectors",
		t.processed, len(model.SupportVectors))
	if err := t.cfg.Checkpoint(model); err != nil {
		return err
	}
	if len(snap.Indices) == 0 {
		return nil
	}
	_, err = t.solver.Init(snap)
	return err
}

func (t *trainer) finish() (Model, error) {
	var iterations int
	if t.cfg.Finishing {
		steps, err := t.solver.Finish(t.cfg.Epsilon)
		if err != nil {
			return Model{}, err
		}
		iterations = steps
	}
	return Model{
		SupportVectors: t.solver.SupportVectors(),
		Alpha:          t.solver.Alpha(),
		Bias:           t.solver.Bias(),
		Objective:      t.solver.Objective(),
		Processed:      t.processed,
		Iterations:     iterations,
	}, nil
}
