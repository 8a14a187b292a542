// Package health aggregates component checks for the status endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"atracker/internal/segment"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration_ns"`
	Error       string                 `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component is a named check. A failing critical component makes the daemon
// unhealthy; any other failure only degrades it.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

type entry struct {
	comp *Component
	last CheckResult
}

// Checker runs registered checks and keeps their last results.
type Checker struct {
	mu      sync.RWMutex
	entries map[string]*entry
	started time.Time
	ready   bool
	now     func() time.Time
}

// NewChecker creates a Checker that is not ready yet.
func NewChecker() *Checker {
	return &Checker{
		entries: make(map[string]*entry),
		started: time.Now(),
		now:     time.Now,
	}
}

// Register adds or replaces a component. Its status is unknown until the
// next Check.
func (c *Checker) Register(component *Component) {
	if component.Timeout <= 0 {
		component.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[component.Name] = &entry{
		comp: component,
		last: CheckResult{Status: StatusUnknown},
	}
}

// RegisterFunc registers check under name with the default timeout.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady flips readiness. The daemon sets it once every task is running
// and clears it while shutting down.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every component concurrently and records the results.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.entries))
	for _, e := range c.entries {
		comps = append(comps, e.comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(comps))
	var wg sync.WaitGroup
	for _, comp := range comps {
		comp := comp
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.run(ctx, comp)

			c.mu.Lock()
			defer c.mu.Unlock()
			results[comp.Name] = res
			// A component re-registered while its check ran keeps its own state.
			if e, ok := c.entries[comp.Name]; ok && e.comp == comp {
				e.last = res
			}
		}()
	}
	wg.Wait()
	return results
}

// run executes one check under its timeout. A check that panics or overruns
// is reported unhealthy.
func (c *Checker) run(ctx context.Context, comp *Component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := c.now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprint(r),
				}
			}
		}()
		done <- comp.Check(ctx)
	}()

	var res CheckResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   ctx.Err().Error(),
		}
	}
	res.LastChecked = start
	res.Duration = c.now().Sub(start)
	return res
}

// GetResult returns the last result for a component.
func (c *Checker) GetResult(name string) (CheckResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return CheckResult{}, false
	}
	return e.last, true
}

// OverallStatus folds the last results: a critical failure is unhealthy, a
// critical component never checked is unknown, anything else failing is
// degraded.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := StatusHealthy
	for _, e := range c.entries {
		switch e.last.Status {
		case StatusUnhealthy:
			if e.comp.Critical {
				return StatusUnhealthy
			}
			overall = worse(overall, StatusDegraded)
		case StatusDegraded:
			overall = worse(overall, StatusDegraded)
		case StatusUnknown:
			if e.comp.Critical {
				overall = worse(overall, StatusUnknown)
			}
		}
	}
	return overall
}

var severity = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnknown:   2,
	StatusUnhealthy: 3,
}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// HealthResponse is the body of the detailed health report.
type HealthResponse struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// HealthResponse builds the report, running the checks first when
// includeComponents is set.
func (c *Checker) HealthResponse(ctx context.Context, includeComponents bool) HealthResponse {
	var components map[string]CheckResult
	if includeComponents {
		components = c.Check(ctx)
	}

	c.mu.RLock()
	ready := c.ready
	uptime := c.now().Sub(c.started).Round(time.Second)
	c.mu.RUnlock()

	return HealthResponse{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.String(),
		Components: components,
		Timestamp:  c.now(),
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers 200 while the process serves requests.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "alive",
			"pid":       os.Getpid(),
			"timestamp": c.now(),
		})
	})
}

// ReadinessHandler answers 503 before SetReady(true) and while a critical
// component is unhealthy. Degraded tracking still counts as ready.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "not ready",
				"timestamp": c.now(),
			})
			return
		}

		c.Check(r.Context())
		status := c.OverallStatus()
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":    status,
			"ready":     true,
			"timestamp": c.now(),
		})
	})
}

// DatabaseCheck reports the store unhealthy when ping fails.
func DatabaseCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "database connection failed",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "database connection ok",
		}
	}
}

// Tracker is the part of the segmentation machine the tracker check reads.
type Tracker interface {
	Status() segment.Status
}

// TrackerCheck reports the tracking loop degraded when the probe keeps
// failing or no tick succeeded within three poll intervals, and unknown
// before the first tick.
func TrackerCheck(t Tracker, now func() time.Time) Check {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) CheckResult {
		st := t.Status()
		details := map[string]interface{}{
			"state":          st.State.String(),
			"probe_failures": st.ProbeFailures,
			"poll_interval":  st.PollInterval.String(),
		}
		if st.LastTick.IsZero() {
			return CheckResult{Status: StatusUnknown, Message: "no tick yet", Details: details}
		}
		age := now().Sub(st.LastTick)
		details["last_tick"] = st.LastTick
		details["last_tick_age"] = age.Round(time.Millisecond).String()

		switch {
		case st.ProbeFailures >= 3:
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("probe failed %d times in a row", st.ProbeFailures),
				Details: details,
			}
		case age > 3*st.PollInterval:
			return CheckResult{
				Status:  StatusDegraded,
				Message: "tracking loop stalled",
				Details: details,
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "tracking", Details: details}
	}
}
