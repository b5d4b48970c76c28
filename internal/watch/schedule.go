package watch

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

// Schedule requests a run of every subject on a fixed interval.
type Schedule struct {
	scheduler gocron.Scheduler
	interval  time.Duration
	logger    *slog.Logger
}

// NewSchedule registers the periodic job. Call Start to begin.
func NewSchedule(interval time.Duration, subjects []string, request func(subject, reason string), logger *slog.Logger) (*Schedule, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create scheduler").Build()
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			for _, subject := range subjects {
				request(subject, "scheduled")
			}
		}),
		gocron.WithName("periodic-run"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to schedule periodic runs").
			WithContext("interval", interval.String()).Build()
	}
	return &Schedule{scheduler: s, interval: interval, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Schedule) Start() {
	s.logger.Info("Starting periodic runs", logfields.Duration(s.interval))
	s.scheduler.Start()
}

// Stop shuts the scheduler down.
func (s *Schedule) Stop() error {
	return s.scheduler.Shutdown()
}
