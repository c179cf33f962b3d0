package lasvm

import (
	"github.com/sirupsen/logrus"
)

// Defaults applied by [NewCache] and [NewSolver].
const (
	// DefaultMaxSize is the row storage budget of a new [Cache], in bytes.
	DefaultMaxSize = 256 << 20
	// DefaultBias enables the equality constraint (and so the bias term).
	DefaultBias = true
)

type (
	// Option configures a [Cache] or a [Solver].
	// Options that do not apply to a constructor are ignored by it.
	Option   func(*settings)
	settings struct {
		log     logrus.FieldLogger
		onFatal func(error)
		maxSize int64
		bias    bool
	}
)

// WithMaxSize sets the row storage budget of a [Cache], in bytes.
// Values <= 0 are ignored.
func WithMaxSize(bytes int64) Option {
	return func(s *settings) {
		if bytes > 0 {
			s.maxSize = bytes
		}
	}
}

// WithLogger sets the logger used for diagnostics.
// By default, only warnings and errors are written to stderr.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithBias selects whether a [Solver] honors the
// equality constraint `Σ alpha_i = 0` (bias term present).
// Disabling it should be considered experimental.
func WithBias(enabled bool) Option {
	return func(s *settings) { s.bias = enabled }
}

// WithFatalHandler replaces the function that is called once
// with the error that poisons a [Solver]. The default panics.
// With a nil handler, or one that returns, the solver returns
// the error to its caller and refuses further work.
func WithFatalHandler(handler func(error)) Option {
	return func(s *settings) { s.onFatal = handler }
}

func gatherOptions(options []Option) settings {
	s := settings{
		onFatal: abort,
		maxSize: DefaultMaxSize,
		bias:    DefaultBias,
	}
	for _, apply := range options {
		apply(&s)
	}
	if s.log == nil {
		s.log = defaultLogger()
	}
	return s
}

func defaultLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func abort(err error) { panic(err) }
