package acs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// State is a selection state machine state
type State int

const (
	StateIdle State = iota
	StateScanRequested
	StateSurveying
	StateStudying
	StateCommitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanRequested:
		return "scan_requested"
	case StateSurveying:
		return "surveying"
	case StateStudying:
		return "studying"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InProgress reports whether a cycle is running in this state
func (s State) InProgress() bool {
	switch s {
	case StateScanRequested, StateSurveying, StateStudying, StateCommitting:
		return true
	}
	return false
}

// Status is the immediate result of Start
type Status int

const (
	StatusInProgress Status = iota
	StatusImmediateFailure
)

func (s Status) String() string {
	if s == StatusInProgress {
		return "in_progress"
	}
	return "immediate_failure"
}

// ChannelStatus is the host's verdict on the channel a cycle applied
type ChannelStatus int

const (
	ChannelValid ChannelStatus = iota
	ChannelInvalid
	ChannelACS
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelValid:
		return "valid"
	case ChannelInvalid:
		return "invalid"
	case ChannelACS:
		return "acs"
	default:
		return "unknown"
	}
}

// ScanRequest asks the driver for an off-channel scan. Done must be called at
// most once, after RequestScan has returned, and never from inside RequestScan.
type ScanRequest struct {
	Freqs []int
	Dwell time.Duration
	Done  func()
}

// Driver is the radio driver collaborator
type Driver interface {
	RequestScan(ctx context.Context, req ScanRequest) error
	FetchSurvey(ctx context.Context, iface *Interface) error
}

// Host validates and persists the channel a cycle applied to iface.Config.
// It must not call back into the Engine.
type Host interface {
	ACSCompleted(ctx context.Context, iface *Interface) ChannelStatus
}

// HostFunc adapts a function to Host
type HostFunc func(ctx context.Context, iface *Interface) ChannelStatus

// ACSCompleted implements Host
func (f HostFunc) ACSCompleted(ctx context.Context, iface *Interface) ChannelStatus {
	return f(ctx, iface)
}

// Outcome describes how a cycle ended
type Outcome struct {
	Interface  string           `json:"interface"`
	Cycle      uint64           `json:"cycle"`
	Channel    int              `json:"channel,omitempty"`
	Freq       int              `json:"freq_mhz,omitempty"`
	Factor     float64          `json:"factor,omitempty"`
	CenterSeg0 int              `json:"center_seg0_idx,omitempty"`
	Bandwidth  int              `json:"bandwidth_mhz"`
	Candidates []CandidateScore `json:"candidates,omitempty"`
	Reason     string           `json:"reason"`
	Error      string           `json:"error,omitempty"`
	Started    time.Time        `json:"started"`
	Duration   time.Duration    `json:"duration"`

	Err error `json:"-"`
}

// Success reports whether the cycle committed a channel
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Observer is notified once per finished cycle
type Observer interface {
	SelectionFinished(ctx context.Context, o Outcome)
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver registers an observer for cycle outcomes
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithStudyStrategy appends a study strategy; SurveyStudy is used when none is given
func WithStudyStrategy(s StudyStrategy) Option {
	return func(e *Engine) { e.strategies = append(e.strategies, s) }
}

// WithPerformanceLogger records phase timings
func WithPerformanceLogger(pl *logx.PerformanceLogger) Option {
	return func(e *Engine) { e.perf = pl }
}

// Engine drives selection cycles for one interface
type Engine struct {
	iface      *Interface
	driver     Driver
	host       Host
	logger     *logx.Logger
	perf       *logx.PerformanceLogger
	strategies []StudyStrategy
	observers  []Observer

	mu        sync.Mutex
	state     State
	cycle     uint64
	cleaned   bool
	started   time.Time
	scanTimer *logx.PhaseTimer
	last      *Outcome
}

// NewEngine creates an idle engine. A nil host accepts every channel.
func NewEngine(iface *Interface, driver Driver, host Host, logger *logx.Logger, opts ...Option) *Engine {
	e := &Engine{
		iface:   iface,
		driver:  driver,
		host:    host,
		logger:  logger,
		state:   StateIdle,
		cleaned: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.strategies) == 0 {
		e.strategies = []StudyStrategy{SurveyStudy{}}
	}
	if e.host == nil {
		e.host = HostFunc(func(context.Context, *Interface) ChannelStatus { return ChannelValid })
	}
	if iface.logger == nil {
		iface.logger = logger
	}
	return e
}

// Start begins a selection cycle. StatusInProgress means the outcome will be
// reported through the Host and observers once the driver finishes scanning.
func (e *Engine) Start(ctx context.Context) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.InProgress() {
		e.logger.Warn("Selection already in progress", "interface", e.iface.Name, "state", e.state.String())
		return StatusImmediateFailure, ErrSelectionInProgress
	}

	e.logger.Info("Automatic channel selection started, this may take a bit",
		"interface", e.iface.Name,
		"mode", e.modeName(),
		"bandwidth_mhz", e.iface.Config.Bandwidth())

	e.cycle++
	e.cleaned = false
	e.started = time.Now()
	if e.state != StateIdle {
		e.transition(StateIdle, "new_cycle")
	}
	e.iface.ResetSurveys()

	cycle := e.cycle
	notifyCtx := context.WithoutCancel(ctx)
	var once sync.Once
	req := ScanRequest{
		Freqs: e.iface.EnabledFrequencies(),
		Dwell: e.iface.Config.ChannelTime,
		Done: func() {
			once.Do(func() { e.scanComplete(notifyCtx, cycle) })
		},
	}

	e.logger.Debug("Using survey based algorithm",
		"interface", e.iface.Name,
		"acs_chan_time_ms", req.Dwell.Milliseconds(),
		"freqs", len(req.Freqs))

	e.scanTimer = e.startPhase("scan")
	if err := e.driver.RequestScan(ctx, req); err != nil {
		e.scanTimer.Complete(err)
		e.logger.Error("Failed to request initial scan", "interface", e.iface.Name, "error", err)
		e.fail(ctx, fmt.Errorf("%w: %v", ErrScanIssuance, err))
		return StatusImmediateFailure, e.last.Err
	}

	e.transition(StateScanRequested, "scan_requested")
	return StatusInProgress, nil
}

// OnScanComplete handles a scan-complete notification for the current cycle.
// Notifications outside StateScanRequested are ignored.
func (e *Engine) OnScanComplete(ctx context.Context) {
	e.mu.Lock()
	cycle := e.cycle
	e.mu.Unlock()
	e.scanComplete(ctx, cycle)
}

func (e *Engine) scanComplete(ctx context.Context, cycle uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cycle != e.cycle || e.state != StateScanRequested {
		e.logger.Debug("Ignoring scan completion",
			"interface", e.iface.Name,
			"state", e.state.String(),
			"cycle", cycle,
			"current_cycle", e.cycle)
		return
	}

	e.scanTimer.Complete(nil)
	e.transition(StateSurveying, "scan_complete")

	fetch := e.startPhase("survey_fetch")
	if err := e.driver.FetchSurvey(ctx, e.iface); err != nil {
		fetch.Complete(err)
		e.logger.Error("Failed to get survey data", "interface", e.iface.Name, "error", err)
		e.fail(ctx, fmt.Errorf("%w: %v", ErrScanFetch, err))
		return
	}
	fetch.Complete(nil)

	e.study(ctx)
}

func (e *Engine) study(ctx context.Context) {
	e.transition(StateStudying, "surveys_fetched")
	timer := e.startPhase("study")

	if err := e.iface.checkSecondaryChannel(); err != nil {
		timer.Complete(err)
		e.fail(ctx, err)
		return
	}

	var studyErr error
	studied := false
	for _, s := range e.strategies {
		if err := s.Study(e.iface); err != nil {
			e.logger.Warn("Study option failed", "interface", e.iface.Name, "strategy", s.Name(), "error", err)
			studyErr = err
			continue
		}
		studied = true
		break
	}
	if !studied {
		e.logger.Error("All study options have failed", "interface", e.iface.Name)
		timer.Complete(studyErr)
		e.fail(ctx, studyErr)
		return
	}

	ideal, err := e.iface.SelectIdealChannel()
	if err != nil {
		e.logger.Error("Failed to compute ideal channel", "interface", e.iface.Name, "error", err)
		timer.Complete(err)
		e.fail(ctx, err)
		return
	}
	timer.Complete(nil)

	e.iface.Config.Channel = ideal.Number
	e.iface.AdjustWideBandwidth()

	status := e.host.ACSCompleted(ctx, e.iface)
	if status != ChannelValid {
		e.logger.Error("Possibly channel configuration is invalid, check channel parameters (secondary channel, center frequencies)",
			"interface", e.iface.Name,
			"channel", ideal.Number,
			"host_status", status.String())
		e.fail(ctx, fmt.Errorf("%w: host returned %s for channel %d", ErrCommitRejected, status, ideal.Number))
		return
	}

	e.transition(StateCommitting, "host_accepted")
	outcome := e.outcome(ideal, nil)
	e.cleanup()
	e.transition(StateDone, "committed")

	e.logger.Info("Automatic channel selection completed",
		"interface", e.iface.Name,
		"channel", ideal.Number,
		"freq", ideal.Freq,
		"center_seg0_idx", e.iface.Config.VHTCenterFreqSeg0Idx,
		"duration", outcome.Duration.String())

	e.finish(ctx, outcome)
}

// Fail aborts the current cycle, if any, and cleans up. Without a running
// cycle no outcome is reported and the last outcome is kept.
func (e *Engine) Fail(ctx context.Context, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cause == nil {
		cause = errors.New("acs: selection aborted")
	}
	if !e.state.InProgress() {
		e.logger.Debug("No selection in progress, nothing to abort",
			"interface", e.iface.Name,
			"state", e.state.String(),
			"error", cause)
		e.cleanup()
		if e.state != StateIdle {
			e.transition(StateIdle, "cleanup")
		}
		return
	}
	e.fail(ctx, cause)
}

func (e *Engine) fail(ctx context.Context, cause error) {
	e.logger.Error("Automatic channel selection failed",
		"interface", e.iface.Name,
		"state", e.state.String(),
		"reason", Reason(cause),
		"error", cause)

	outcome := e.outcome(nil, cause)
	e.cleanup()
	e.transition(StateFailed, Reason(cause))
	e.transition(StateIdle, "cleanup")
	e.finish(ctx, outcome)
}

// cleanup releases the cycle's survey data; repeated calls are no-ops
func (e *Engine) cleanup() {
	if e.cleaned {
		return
	}
	e.iface.ResetSurveys()
	e.cleaned = true
}

func (e *Engine) outcome(ch *Channel, err error) Outcome {
	o := Outcome{
		Interface:  e.iface.Name,
		Cycle:      e.cycle,
		Bandwidth:  e.iface.Config.Bandwidth(),
		Candidates: e.iface.Candidates(),
		Reason:     Reason(err),
		Started:    e.started,
		Duration:   time.Since(e.started),
		Err:        err,
	}
	if err != nil {
		o.Error = err.Error()
	}
	if ch != nil {
		o.Channel = ch.Number
		o.Freq = ch.Freq
		o.CenterSeg0 = e.iface.Config.VHTCenterFreqSeg0Idx
		for _, c := range o.Candidates {
			if c.Channel == ch.Number {
				o.Factor = c.Factor
				break
			}
		}
	}
	return o
}

func (e *Engine) finish(ctx context.Context, o Outcome) {
	e.last = &o
	for _, obs := range e.observers {
		obs.SelectionFinished(ctx, o)
	}
}

func (e *Engine) transition(to State, reason string) {
	from := e.state
	e.state = to
	e.logger.LogStateChange("acs", from.String(), to.String(), reason, map[string]interface{}{
		"interface": e.iface.Name,
		"cycle":     e.cycle,
	})
}

func (e *Engine) startPhase(name string) *logx.PhaseTimer {
	if e.perf == nil {
		return nil
	}
	return e.perf.Start(name)
}

func (e *Engine) modeName() string {
	if e.iface.Mode == nil {
		return "none"
	}
	return e.iface.Mode.Mode.String()
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastOutcome returns the outcome of the most recent finished cycle
func (e *Engine) LastOutcome() (Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Outcome{}, false
	}
	return *e.last, true
}

// Interface returns the selection context the engine drives
func (e *Engine) Interface() *Interface {
	return e.iface
}

// Config returns a copy of the interface configuration
func (e *Engine) Config() RadioConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.iface.Config
}
