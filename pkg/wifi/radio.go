package wifi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/iwinfo"
	"github.com/markus-lassfolk/acsd/pkg/logx"
	"github.com/markus-lassfolk/acsd/pkg/uci"
)

// ErrUnknownRadio is returned for a radio that is not under automatic selection
var ErrUnknownRadio = errors.New("wifi: unknown radio")

// DriverFactory creates the driver for one radio
type DriverFactory func(radio uci.RadioSection) acs.Driver

// Radio is one managed wifi-device
type Radio struct {
	Section   uci.RadioSection
	Engine    *acs.Engine
	permitted map[int]bool
}

// RadioStatus is a point-in-time view of a managed radio
type RadioStatus struct {
	Name        string       `json:"name"`
	Device      string       `json:"device"`
	Band        string       `json:"band"`
	HTMode      string       `json:"htmode"`
	State       string       `json:"state"`
	Channel     int          `json:"channel"`
	Bandwidth   int          `json:"bandwidth_mhz"`
	Permitted   []int        `json:"permitted_channels"`
	LastOutcome *acs.Outcome `json:"last_outcome,omitempty"`
}

// ManagerOption configures a RadioManager
type ManagerOption func(*RadioManager)

// WithDriverFactory replaces the iw/ubus driver
func WithDriverFactory(f DriverFactory) ManagerOption {
	return func(m *RadioManager) { m.newDriver = f }
}

// WithCommandRunner sets the runner used for `wifi reload` and the default driver
func WithCommandRunner(r iwinfo.CommandRunner) ManagerOption {
	return func(m *RadioManager) { m.runner = r }
}

// WithObservers adds observers that receive every radio's outcomes
func WithObservers(obs ...acs.Observer) ManagerOption {
	return func(m *RadioManager) { m.observers = append(m.observers, obs...) }
}

// WithPerformanceLogger shares a phase timer across all engines
func WithPerformanceLogger(pl *logx.PerformanceLogger) ManagerOption {
	return func(m *RadioManager) { m.perf = pl }
}

// RadioManager owns the engines of all managed radios and acts as their host:
// it checks each selected channel against the permitted set and persists it.
//
// Engines call the manager's host and observer methods with their own lock
// held, so the manager never holds its lock while calling into an engine.
type RadioManager struct {
	cfg       *uci.Config
	store     uci.Store
	runner    iwinfo.CommandRunner
	logger    *logx.Logger
	perf      *logx.PerformanceLogger
	newDriver DriverFactory
	observers []acs.Observer

	mu     sync.RWMutex
	radios map[string]*Radio
	order  []string

	statMu        sync.Mutex
	lastSelection time.Time
}

// NewRadioManager creates a manager without radios; call Load to add them
func NewRadioManager(cfg *uci.Config, store uci.Store, logger *logx.Logger, opts ...ManagerOption) *RadioManager {
	m := &RadioManager{
		cfg:    cfg,
		store:  store,
		logger: logger,
		radios: make(map[string]*Radio),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = iwinfo.ExecRunner{}
	}
	if m.newDriver == nil {
		m.newDriver = func(r uci.RadioSection) acs.Driver {
			return iwinfo.NewDriver(r.Device(), iwinfo.Backend(cfg.SurveyBackend), m.runner, logger)
		}
	}
	return m
}

// Load replaces the managed radios with the wifi-device sections that request
// automatic selection. Radios that cannot be managed are skipped with a log line.
func (m *RadioManager) Load(sections []uci.RadioSection) error {
	domain := ParseRegDomain(m.cfg.RegDomain)
	radios := make(map[string]*Radio)
	var order []string

	for _, s := range sections {
		switch {
		case s.Disabled:
			m.logger.Debug("Skipping disabled radio", "radio", s.Name)
			continue
		case !m.cfg.WantsRadio(s.Name):
			m.logger.Debug("Skipping radio not listed in configuration", "radio", s.Name)
			continue
		case !s.ACSRequested():
			m.logger.Info("Radio has a fixed channel, not under automatic selection",
				"radio", s.Name,
				"channel", s.Channel)
			continue
		}

		rc, err := s.RadioConfig(m.cfg.ChannelTime())
		if err != nil {
			m.logger.Warn("Skipping radio", "radio", s.Name, "error", err)
			continue
		}
		if n, err := strconv.Atoi(s.Channel); err == nil {
			rc.Channel = n
		}
		mode, err := BuildHWMode(s, domain, m.cfg.UseDFS)
		if err != nil {
			m.logger.Warn("Skipping radio", "radio", s.Name, "error", err)
			continue
		}

		iface := acs.NewInterface(s.Name, mode, rc, m.logger)
		opts := []acs.Option{acs.WithObserver(m)}
		if m.perf != nil {
			opts = append(opts, acs.WithPerformanceLogger(m.perf))
		}

		permitted := make(map[int]bool)
		for _, ch := range mode.Channels {
			if ch.Enabled {
				permitted[ch.Number] = true
			}
		}

		radios[s.Name] = &Radio{
			Section:   s,
			Engine:    acs.NewEngine(iface, m.newDriver(s), m, m.logger, opts...),
			permitted: permitted,
		}
		order = append(order, s.Name)

		m.logger.Info("Radio under automatic channel selection",
			"radio", s.Name,
			"device", s.Device(),
			"mode", mode.Mode.String(),
			"htmode", s.HTMode,
			"bandwidth_mhz", rc.Bandwidth(),
			"reg_domain", string(domain),
			"permitted", len(permitted))
	}

	if len(order) == 0 {
		return fmt.Errorf("no radio requests automatic channel selection")
	}

	m.mu.Lock()
	m.radios = radios
	m.order = order
	m.mu.Unlock()
	return nil
}

// ACSCompleted implements acs.Host
func (m *RadioManager) ACSCompleted(ctx context.Context, iface *acs.Interface) acs.ChannelStatus {
	m.mu.RLock()
	radio, ok := m.radios[iface.Name]
	m.mu.RUnlock()
	if !ok {
		m.logger.Error("Selection finished for unknown radio", "radio", iface.Name)
		return acs.ChannelInvalid
	}

	channel := iface.Config.Channel
	span := iface.Config.Bandwidth() / 20
	for i := 0; i < span; i++ {
		if ch := channel + 4*i; !radio.permitted[ch] {
			m.logger.Error("Selected channel is not permitted",
				"radio", iface.Name,
				"channel", channel,
				"offending_channel", ch)
			return acs.ChannelInvalid
		}
	}

	if m.cfg.DryRun {
		m.logger.Info("DRY RUN: Would apply channel",
			"radio", iface.Name,
			"channel", channel,
			"center_seg0_idx", iface.Config.VHTCenterFreqSeg0Idx)
		return acs.ChannelValid
	}

	if err := uci.SetChannel(ctx, m.store, iface.Name, channel); err != nil {
		m.logger.Error("Failed to store selected channel", "radio", iface.Name, "channel", channel, "error", err)
		return acs.ChannelInvalid
	}

	if _, err := m.runner.Run(ctx, "wifi", "reload", iface.Name); err != nil {
		m.logger.Error("Failed to reload WiFi", "radio", iface.Name, "error", err)
		return acs.ChannelInvalid
	}

	m.logger.Info("Channel applied", "radio", iface.Name, "channel", channel)
	return acs.ChannelValid
}

// SelectionFinished implements acs.Observer and forwards to the registered observers
func (m *RadioManager) SelectionFinished(ctx context.Context, o acs.Outcome) {
	if o.Success() {
		m.statMu.Lock()
		m.lastSelection = time.Now()
		m.statMu.Unlock()
	}
	for _, obs := range m.observers {
		obs.SelectionFinished(ctx, o)
	}
}

// LastSelection returns when a radio last committed a channel
func (m *RadioManager) LastSelection() time.Time {
	m.statMu.Lock()
	defer m.statMu.Unlock()
	return m.lastSelection
}

func (m *RadioManager) radio(name string) (*Radio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.radios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRadio, name)
	}
	return r, nil
}

func (m *RadioManager) snapshot() []*Radio {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Radio, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.radios[name])
	}
	return out
}

// Names lists the managed radios in configuration order
func (m *RadioManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Select starts a selection cycle on one radio
func (m *RadioManager) Select(ctx context.Context, name string) (acs.Status, error) {
	r, err := m.radio(name)
	if err != nil {
		return acs.StatusImmediateFailure, err
	}
	return r.Engine.Start(ctx)
}

// SelectAll starts a cycle on every managed radio and returns the radios that
// failed to start.
func (m *RadioManager) SelectAll(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, r := range m.snapshot() {
		if _, err := r.Engine.Start(ctx); err != nil {
			failed[r.Section.Name] = err
		}
	}
	return failed
}

// WaitIdle blocks until no radio has a cycle in progress
func (m *RadioManager) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		busy := false
		for _, r := range m.snapshot() {
			if r.Engine.State().InProgress() {
				busy = true
				break
			}
		}
		if !busy {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Radios returns the status of every managed radio
func (m *RadioManager) Radios() []RadioStatus {
	radios := m.snapshot()
	out := make([]RadioStatus, 0, len(radios))
	for _, r := range radios {
		out = append(out, r.status())
	}
	return out
}

// Radio returns the status of one radio
func (m *RadioManager) Radio(name string) (RadioStatus, error) {
	r, err := m.radio(name)
	if err != nil {
		return RadioStatus{}, err
	}
	return r.status(), nil
}

func (r *Radio) status() RadioStatus {
	cfg := r.Engine.Config()
	band := "2g"
	if r.Section.Is5GHz() {
		band = "5g"
	}

	st := RadioStatus{
		Name:      r.Section.Name,
		Device:    r.Section.Device(),
		Band:      band,
		HTMode:    r.Section.HTMode,
		State:     r.Engine.State().String(),
		Channel:   cfg.Channel,
		Bandwidth: cfg.Bandwidth(),
	}
	for ch := range r.permitted {
		st.Permitted = append(st.Permitted, ch)
	}
	sort.Ints(st.Permitted)

	if o, ok := r.Engine.LastOutcome(); ok {
		st.LastOutcome = &o
	}
	return st
}
