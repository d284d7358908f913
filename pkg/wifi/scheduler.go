package wifi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/logx"
	"github.com/markus-lassfolk/acsd/pkg/uci"
)

// Selector starts selection on every radio
type Selector interface {
	SelectAll(ctx context.Context) map[string]error
	LastSelection() time.Time
}

// SchedulerConfig represents scheduler configuration
type SchedulerConfig struct {
	NightlyEnabled bool          `json:"nightly_enabled"`
	NightlyTime    string        `json:"nightly_time"` // HH:MM
	NightlyWindow  time.Duration `json:"nightly_window"`

	CheckInterval   time.Duration `json:"check_interval"`
	SkipIfRecent    bool          `json:"skip_if_recent"`
	RecentThreshold time.Duration `json:"recent_threshold"`
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		NightlyEnabled:  true,
		NightlyTime:     uci.DefaultNightlyTime,
		NightlyWindow:   uci.DefaultNightlyWindowMin * time.Minute,
		CheckInterval:   5 * time.Minute,
		SkipIfRecent:    true,
		RecentThreshold: 6 * time.Hour,
	}
}

// SchedulerConfigFrom derives the scheduler settings from the daemon config
func SchedulerConfigFrom(cfg *uci.Config) *SchedulerConfig {
	sc := DefaultSchedulerConfig()
	sc.NightlyEnabled = cfg.NightlyEnabled
	sc.NightlyTime = cfg.NightlyTime
	sc.NightlyWindow = cfg.NightlyWindow()
	return sc
}

// SchedulerStatus is a snapshot of the scheduler
type SchedulerStatus struct {
	Running        bool      `json:"running"`
	NightlyEnabled bool      `json:"nightly_enabled"`
	NightlyTime    string    `json:"nightly_time"`
	LastNightly    time.Time `json:"last_nightly"`
	NextNightly    time.Time `json:"next_nightly,omitempty"`
}

// Scheduler re-runs channel selection once per night inside a time window
type Scheduler struct {
	selector Selector
	logger   *logx.Logger
	config   *SchedulerConfig
	now      func() time.Time

	running     bool
	lastNightly time.Time
	nextNightly time.Time
	mu          sync.RWMutex
	stopCh      chan struct{}
	done        chan struct{}
}

// NewScheduler creates a stopped scheduler
func NewScheduler(selector Selector, logger *logx.Logger, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		selector: selector,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if _, err := time.Parse("15:04", s.config.NightlyTime); s.config.NightlyEnabled && err != nil {
		return fmt.Errorf("invalid nightly time %q: %w", s.config.NightlyTime, err)
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.calculateNextNightly(s.now())

	s.logger.Info("Starting channel selection scheduler",
		"nightly_enabled", s.config.NightlyEnabled,
		"nightly_time", s.config.NightlyTime,
		"window", s.config.NightlyWindow.String(),
		"check_interval", s.config.CheckInterval.String())

	go s.loop(ctx, s.stopCh, s.done)
	return nil
}

// Stop stops the loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("Channel selection scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler loop stopped (context cancelled)")
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check runs the nightly selection when the current time falls in the window
func (s *Scheduler) check(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.config.NightlyEnabled || !s.shouldRunNightly(now) {
		if !s.nextNightly.IsZero() && now.After(s.nextNightly.Add(s.config.NightlyWindow)) {
			s.calculateNextNightly(now)
		}
		return false
	}

	s.run(ctx, "scheduled_nightly")
	s.lastNightly = now
	s.calculateNextNightly(now)
	return true
}

// shouldRunNightly checks the window, the once-per-day rule and recent runs
func (s *Scheduler) shouldRunNightly(now time.Time) bool {
	if s.nextNightly.IsZero() {
		return false
	}

	windowStart := s.nextNightly
	windowEnd := s.nextNightly.Add(s.config.NightlyWindow)
	if now.Before(windowStart) || now.After(windowEnd) {
		return false
	}

	if s.lastNightly.Year() == now.Year() && s.lastNightly.YearDay() == now.YearDay() {
		return false
	}

	if s.config.SkipIfRecent {
		if last := s.selector.LastSelection(); !last.IsZero() && now.Sub(last) < s.config.RecentThreshold {
			s.logger.Info("Skipping nightly selection due to recent selection",
				"last_selection", last.Format(time.RFC3339),
				"threshold", s.config.RecentThreshold.String())
			s.lastNightly = now
			s.calculateNextNightly(now)
			return false
		}
	}

	return true
}

// calculateNextNightly sets the start of the next nightly window. A window
// that is still open counts as next.
func (s *Scheduler) calculateNextNightly(now time.Time) {
	if !s.config.NightlyEnabled {
		s.nextNightly = time.Time{}
		return
	}

	target, err := time.Parse("15:04", s.config.NightlyTime)
	if err != nil {
		s.logger.Error("Invalid nightly time format", "time", s.config.NightlyTime, "error", err)
		s.nextNightly = time.Time{}
		return
	}

	next := time.Date(now.Year(), now.Month(), now.Day(),
		target.Hour(), target.Minute(), 0, 0, now.Location())

	ranToday := s.lastNightly.Year() == now.Year() && s.lastNightly.YearDay() == now.YearDay()
	if now.After(next.Add(s.config.NightlyWindow)) || (ranToday && !now.Before(next)) {
		next = next.AddDate(0, 0, 1)
	}

	s.nextNightly = next
	s.logger.Debug("Next nightly selection scheduled", "time", next.Format(time.RFC3339))
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	started := s.now()
	s.logger.Info("Executing scheduled channel selection", "trigger", trigger)

	failed := s.selector.SelectAll(ctx)
	for radio, err := range failed {
		s.logger.Error("Scheduled selection failed to start", "radio", radio, "error", err)
	}

	s.logger.LogStateChange("scheduler", "idle", "selecting", trigger, map[string]interface{}{
		"executed_at": started.UTC().Format(time.RFC3339),
		"failed":      len(failed),
	})
}

// ForceNightly runs the nightly selection immediately
func (s *Scheduler) ForceNightly(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Manually triggering nightly channel selection")
	s.run(ctx, "manual_nightly")
	s.lastNightly = s.now()
	s.calculateNextNightly(s.lastNightly)
}

// Status returns scheduler status
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SchedulerStatus{
		Running:        s.running,
		NightlyEnabled: s.config.NightlyEnabled,
		NightlyTime:    s.config.NightlyTime,
		LastNightly:    s.lastNightly,
		NextNightly:    s.nextNightly,
	}
}
