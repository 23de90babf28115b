package app

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures AttemptService and ScoreboardService.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	notifiers []ScoreboardNotifier
	publisher EventPublisher
	recorder  Recorder
	pageSize  int
}

func defaultOptions() options {
	return options{
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		recorder: nopRecorder{},
		pageSize: DefaultPageSize,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock is mainly for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithNotifiers registers post-commit listeners for scoreboard changes.
func WithNotifiers(notifiers ...ScoreboardNotifier) Option {
	return func(o *options) { o.notifiers = append(o.notifiers, notifiers...) }
}

func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithDefaultPageSize sets the scoreboard page size used when callers pass none.
func WithDefaultPageSize(size int) Option {
	return func(o *options) {
		if size > 0 && size <= MaxPageSize {
			o.pageSize = size
		}
	}
}
