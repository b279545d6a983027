package simulator

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"binwatch/internal/config"
	"binwatch/internal/logger"
	"binwatch/internal/metrics"
	"binwatch/internal/models"
)

// binSchedule is the per-bin state owned by the scheduler
type binSchedule struct {
	name     models.BinName
	interval time.Duration
	nextDue  time.Time
	state    LevelState
}

// Scheduler generates and posts levels for every bin on its own interval,
// honouring the shared pause flag.
type Scheduler struct {
	client Client
	model  *Model
	bins   []*binSchedule

	pollInterval time.Duration
	tickInterval time.Duration
	lastPoll     time.Time
	polled       bool
	paused       bool

	now func() time.Time
}

// SchedulerConfig wires a Scheduler
type SchedulerConfig struct {
	Client       Client
	Rand         *rand.Rand
	Intervals    []config.BinInterval
	PollInterval time.Duration
	TickInterval time.Duration
	// Defaults to time.Now
	Now func() time.Time
}

// NewScheduler creates a scheduler with every bin due immediately
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(now().UnixNano()))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	start := now()
	bins := make([]*binSchedule, 0, len(cfg.Intervals))
	for _, iv := range cfg.Intervals {
		bins = append(bins, &binSchedule{name: iv.Bin, interval: iv.Interval, nextDue: start})
	}

	return &Scheduler{
		client:       cfg.Client,
		model:        NewModel(rng),
		bins:         bins,
		pollInterval: cfg.PollInterval,
		tickInterval: cfg.TickInterval,
		now:          now,
	}
}

// Paused reports the last known pause flag
func (s *Scheduler) Paused() bool {
	return s.paused
}

// Tick runs one loop iteration at now and reports whether the simulator is paused
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	if !s.polled || now.Sub(s.lastPoll) >= s.pollInterval {
		s.pollConfig(ctx)
		s.polled, s.lastPoll = true, now
	}

	if s.paused {
		return true
	}

	for _, b := range s.bins {
		if now.Before(b.nextDue) {
			continue
		}
		s.post(ctx, b)
		// the schedule advances even when the post failed
		b.nextDue = now.Add(b.interval)
	}
	return false
}

// Run loops until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	log := logger.WithComponent("simulator")

	intervals := make([]string, 0, len(s.bins))
	for _, b := range s.bins {
		intervals = append(intervals, string(b.name)+"="+b.interval.String())
	}
	log.Info().
		Dur("poll_interval", s.pollInterval).
		Str("intervals", strings.Join(intervals, ",")).
		Msg("simulator started")

	for {
		wait := s.tickInterval
		if s.Tick(ctx, s.now()) {
			wait = s.pollInterval
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("simulator stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) pollConfig(ctx context.Context) {
	paused, err := s.client.FetchPaused(ctx)
	if err != nil {
		log := logger.WithComponent("simulator")
		log.Debug().
			Err(err).
			Bool("paused", s.paused).
			Msg("config poll failed, keeping previous flag")
		return
	}

	if paused != s.paused {
		log := logger.WithComponent("simulator")
		log.Info().Bool("paused", paused).Msg("pause flag changed")
	}
	s.paused = paused
	if paused {
		metrics.SimulatorPaused.Set(1)
	} else {
		metrics.SimulatorPaused.Set(0)
	}
}

func (s *Scheduler) post(ctx context.Context, b *binSchedule) {
	log := logger.WithComponent("simulator").With().Str("bin", string(b.name)).Logger()

	level := s.model.Next(&b.state)
	status, err := s.client.PostLevel(ctx, b.name, level)
	if err != nil {
		metrics.SimulatorPostsTotal.WithLabelValues(string(b.name), "failed").Inc()
		log.Warn().Err(err).Int("level", level).Msg("post failed")
		return
	}

	result := "success"
	if status >= 300 {
		result = "failed"
	}
	metrics.SimulatorPostsTotal.WithLabelValues(string(b.name), result).Inc()
	log.Info().Int("level", level).Int("status", status).Msg("level posted")
}
