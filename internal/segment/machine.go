// Package segment turns periodic probe samples into non-overlapping activity
// events.
//
// The Machine is driven one tick at a time. Each tick evaluates, in order:
// clock discontinuities, the pause flag, the idle threshold and finally the
// foreground window. Whenever the tracked state changes the open segment is
// flushed (filtered, then persisted) and a new one starts at the boundary.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"atracker/internal/activity"
	"atracker/internal/filter"
	"atracker/internal/metrics"
	"atracker/internal/pattern"
)

// ErrClosed is returned by Tick after Close.
var ErrClosed = errors.New("segment machine closed")

// Probe samples the operating system.
type Probe interface {
	Sample(ctx context.Context) (activity.Identity, error)
	IdleMillis(ctx context.Context) (int64, error)
}

// Store is the persistence the machine needs.
type Store interface {
	InsertEvent(ctx context.Context, ev *activity.Event) error
	Settings(ctx context.Context) (map[string]string, error)
	FilterRules(ctx context.Context) ([]activity.FilterRule, error)
}

// PauseSource reports the global pause flag.
type PauseSource interface {
	Paused(ctx context.Context) (bool, error)
}

// State is the machine state.
type State int

const (
	StateActive State = iota
	StateIdle
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePaused:
		return "paused"
	default:
		return "active"
	}
}

// Config holds the machine timing parameters.
type Config struct {
	DeviceID string

	// Settings are used until the first successful reload.
	Settings activity.Settings

	ReloadInterval  time.Duration
	ProbeTimeout    time.Duration
	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration

	// JumpFactor multiplies the poll interval to get the clock-jump threshold.
	JumpFactor int
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		Settings:        activity.DefaultSettings(),
		ReloadInterval:  60 * time.Second,
		ProbeTimeout:    2 * time.Second,
		StoreTimeout:    3 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		JumpFactor:      4,
	}
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithMetrics attaches collectors.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithLogger replaces the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithPause attaches the pause flag source.
func WithPause(p PauseSource) Option {
	return func(m *Machine) { m.pause = p }
}

// WithPatternCache shares compiled filter patterns.
func WithPatternCache(c *pattern.Cache) Option {
	return func(m *Machine) { m.cache = c }
}

// Machine is the segmentation state machine. Tick and Close are serialized;
// readers observe the open segment only through the published Current slot.
type Machine struct {
	cfg     Config
	probe   Probe
	store   Store
	pause   PauseSource
	current *activity.Current
	metrics *metrics.Metrics
	cache   *pattern.Cache
	logger  *slog.Logger
	now     func() time.Time

	mu            sync.Mutex
	settings      activity.Settings
	rules         *filter.Set
	limiter       *rate.Limiter
	seg           activity.OpenSegment
	state         State
	lastGood      time.Time
	lastEnd       time.Time
	probeFailures int
	closed        bool
}

// New creates a machine in the Active state with an empty identity.
func New(cfg Config, probe Probe, store Store, current *activity.Current, opts ...Option) *Machine {
	def := DefaultConfig()
	if cfg.Settings.PollInterval <= 0 {
		cfg.Settings.PollInterval = def.Settings.PollInterval
	}
	if cfg.Settings.IdleThreshold <= 0 {
		cfg.Settings.IdleThreshold = def.Settings.IdleThreshold
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = def.ReloadInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.JumpFactor <= 0 {
		cfg.JumpFactor = def.JumpFactor
	}
	if current == nil {
		current = &activity.Current{}
	}

	m := &Machine{
		cfg:      cfg,
		probe:    probe,
		store:    store,
		current:  current,
		settings: cfg.Settings,
		limiter:  rate.NewLimiter(rate.Every(cfg.ReloadInterval), 1),
		state:    StateActive,
		// Wall clock only: the monotonic reading stops during suspend.
		now:    func() time.Time { return time.Now().Round(0) },
		logger: slog.Default().With("component", "segment"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = pattern.NewCache()
	}
	m.rules = filter.New(nil, m.cache)
	m.seg = activity.NewSegment(cfg.DeviceID, activity.Identity{}, m.now())
	m.current.Publish(&m.seg)
	return m
}

// Current returns the publication slot of the open segment.
func (m *Machine) Current() *activity.Current { return m.current }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PollInterval returns the poll interval in effect.
func (m *Machine) PollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.PollInterval
}

// Settings returns the settings in effect.
func (m *Machine) Settings() activity.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Status is a point-in-time view of the loop used by health checks.
type Status struct {
	State         State
	LastTick      time.Time
	ProbeFailures int
	PollInterval  time.Duration
}

// Status returns the loop status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:         m.state,
		LastTick:      m.lastGood,
		ProbeFailures: m.probeFailures,
		PollInterval:  m.settings.PollInterval,
	}
}

// Tick runs one poll cycle. A probe failure leaves the state untouched and
// is returned after being logged.
func (m *Machine) Tick(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	now := m.now()
	// The gap since the last tick was scheduled under the interval in effect
	// before this reload, so a lowered interval must not read as a jump.
	interval := m.settings.PollInterval
	m.maybeReload(ctx, now)
	interval = max(interval, m.settings.PollInterval)

	paused := m.readPause(ctx)

	var (
		id     activity.Identity
		idleMs int64
	)
	if !paused {
		var err error
		id, idleMs, err = m.sample(ctx)
		if err != nil {
			m.probeFailures++
			m.metrics.Tick(metrics.TickProbeError)
			if m.probeFailures >= 3 {
				m.logger.Warn("probe failing", "consecutive", m.probeFailures, "error", err)
			} else {
				m.logger.Debug("probe failed, skipping tick", "error", err)
			}
			return fmt.Errorf("sample probe: %w", err)
		}
		m.probeFailures = 0
	}

	m.step(ctx, now, interval, paused, id, idleMs)
	m.lastGood = now

	if paused {
		m.metrics.Tick(metrics.TickPaused)
	} else {
		m.metrics.Tick(metrics.TickOK)
	}
	m.metrics.SetOpenSegmentAge(m.seg.Elapsed(now))
	return nil
}

// step applies the transition rules for one successful tick.
func (m *Machine) step(ctx context.Context, now time.Time, interval time.Duration, paused bool, id activity.Identity, idleMs int64) {
	if m.jumped(now, interval) {
		m.metrics.ClockJump()
		m.logger.Info("clock jump detected",
			"last_tick", m.lastGood,
			"now", now,
			"gap", now.Sub(m.lastGood).String(),
		)
		prev := m.seg.Identity()
		m.flush(ctx, m.lastGood)
		m.open(prev, now)
	}

	if paused {
		if m.state != StatePaused {
			m.flush(ctx, now)
			m.open(activity.Paused(), now)
		}
		return
	}

	reopen := false
	if m.state == StatePaused {
		m.flush(ctx, now)
		reopen = true
	}

	if idleMs > m.settings.IdleThreshold.Milliseconds() {
		if m.state != StateIdle || reopen {
			if !reopen {
				m.flush(ctx, now)
			}
			m.open(activity.Idle(), now)
		}
		return
	}

	if m.state == StateIdle {
		m.flush(ctx, now)
		reopen = true
	}

	if reopen || !m.seg.Identity().SameWindow(id) {
		if !reopen {
			m.flush(ctx, now)
		}
		m.open(id, now)
	}
}

// jumped reports a gap since the last good tick larger than the jump
// threshold for interval, or a backwards step of the wall clock.
func (m *Machine) jumped(now time.Time, interval time.Duration) bool {
	if m.lastGood.IsZero() {
		return false
	}
	gap := now.Sub(m.lastGood)
	limit := time.Duration(m.cfg.JumpFactor) * interval
	return gap > limit || gap < 0
}

// open starts a new segment and publishes it. A segment never starts before
// the end of the last closed one, so a clock stepped backwards cannot
// produce overlapping events.
func (m *Machine) open(id activity.Identity, start time.Time) {
	if start.Before(m.lastEnd) {
		start = m.lastEnd
	}
	m.seg = activity.NewSegment(m.cfg.DeviceID, id, start)
	switch id.App {
	case activity.IdleApp:
		m.state = StateIdle
	case activity.PausedApp:
		m.state = StatePaused
	default:
		m.state = StateActive
	}
	m.current.Publish(&m.seg)
	m.logger.Debug("segment opened", "app", id.App, "title", id.Title, "state", m.state.String())
}

// flush closes the open segment at end and persists it unless it is too
// short, has no identity, or is ignored by a filter rule. Persistence errors
// are logged; the segment is not retried.
func (m *Machine) flush(ctx context.Context, end time.Time) {
	seg := m.seg
	if end.After(m.lastEnd) {
		m.lastEnd = end
	}
	if end.Sub(seg.Start) < time.Second {
		m.metrics.Flush(metrics.FlushDiscardedShort)
		return
	}
	if seg.Identity().Empty() {
		m.metrics.Flush(metrics.FlushEmpty)
		return
	}

	ev := seg.Close(end)
	decision := m.rules.Apply(&ev)
	if decision.Outcome == filter.Ignore {
		m.metrics.Flush(metrics.FlushIgnored)
		m.logger.Debug("segment ignored", "rule_id", decision.RuleID, "app", ev.App)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	started := time.Now()
	err := m.store.InsertEvent(sctx, &ev)
	m.metrics.ObserveFlush(time.Since(started))
	if err != nil {
		m.metrics.Flush(metrics.FlushError)
		m.logger.Error("persist event failed",
			"app", ev.App,
			"start", ev.Start,
			"duration_secs", ev.DurationSecs,
			"error", err,
		)
		return
	}

	if decision.Outcome == filter.Redact {
		m.metrics.Flush(metrics.FlushRedacted)
	} else {
		m.metrics.Flush(metrics.FlushPersisted)
	}
}

func (m *Machine) sample(ctx context.Context) (activity.Identity, int64, error) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	idleMs, err := m.probe.IdleMillis(pctx)
	if err != nil {
		return activity.Identity{}, 0, fmt.Errorf("idle time: %w", err)
	}
	id, err := m.probe.Sample(pctx)
	if err != nil {
		return activity.Identity{}, 0, fmt.Errorf("foreground window: %w", err)
	}
	return id, idleMs, nil
}

// readPause returns the pause flag, keeping the previous value on error.
func (m *Machine) readPause(ctx context.Context) bool {
	if m.pause == nil {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	paused, err := m.pause.Paused(pctx)
	if err != nil {
		m.logger.Warn("read pause flag failed", "error", err)
		return m.state == StatePaused
	}
	return paused
}

// maybeReload refreshes settings and filter rules at most once per reload
// interval. Failures keep the previous values.
func (m *Machine) maybeReload(ctx context.Context, now time.Time) {
	if !m.limiter.AllowN(now, 1) {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	ok := true
	if kv, err := m.store.Settings(rctx); err != nil {
		ok = false
		m.logger.Warn("reload settings failed", "error", err)
	} else if s, err := activity.ParseSettings(kv, m.settings); err != nil {
		ok = false
		m.logger.Warn("invalid settings, keeping previous", "error", err)
	} else {
		if s != m.settings {
			m.logger.Info("settings changed",
				"poll_interval", s.PollInterval.String(),
				"idle_threshold", s.IdleThreshold.String(),
			)
		}
		m.settings = s
	}

	if rules, err := m.store.FilterRules(rctx); err != nil {
		ok = false
		m.logger.Warn("reload filter rules failed", "error", err)
	} else {
		m.rules = filter.New(rules, m.cache)
	}

	m.metrics.Reload(ok)
}

// Close flushes the open segment at the current time, or at the last good
// tick when the clock jumped since, and clears the published state. It is
// safe to call more than once; only the first call flushes.
func (m *Machine) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	end := m.now()
	if m.jumped(end, m.settings.PollInterval) {
		end = m.lastGood
	}
	m.flush(fctx, end)
	m.current.Publish(nil)
	m.logger.Info("segmentation stopped")
	return nil
}

// Run ticks immediately and then every poll interval until ctx is done, then
// performs the final flush.
func (m *Machine) Run(ctx context.Context) error {
	m.logger.Info("segmentation started",
		"device_id", m.cfg.DeviceID,
		"poll_interval", m.PollInterval().String(),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return m.Close(ctx)
		case <-timer.C:
			if err := m.Tick(ctx); errors.Is(err, ErrClosed) {
				return nil
			}
			timer.Reset(m.PollInterval())
		}
	}
}
