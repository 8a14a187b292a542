package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"atracker/internal/activity"
	"atracker/internal/health"
	"atracker/internal/timefmt"
)

// MaxHistoryDays bounds /api/history.
const MaxHistoryDays = 366

// CurrentView is the open segment as shown to clients.
type CurrentView struct {
	Segment          *activity.OpenSegment `json:"segment"`
	ElapsedSecs      float64               `json:"elapsed_secs"`
	ElapsedFormatted string                `json:"elapsed_formatted"`
	Category         string                `json:"category,omitempty"`
	Color            string                `json:"color,omitempty"`
	Paused           bool                  `json:"paused"`
	PausedUntil      *time.Time            `json:"paused_until,omitempty"`
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Status      health.Status                 `json:"status"`
	Timestamp   time.Time                     `json:"timestamp"`
	DBPath      string                        `json:"db_path"`
	DeviceID    string                        `json:"device_id"`
	Current     *activity.OpenSegment         `json:"current"`
	Paused      bool                          `json:"paused"`
	PausedUntil *time.Time                    `json:"paused_until,omitempty"`
	Components  map[string]health.CheckResult `json:"components,omitempty"`
}

func (s *Server) currentView(ctx context.Context) (CurrentView, error) {
	now := s.deps.Engine.Now()
	v := CurrentView{Segment: s.deps.Current.Load()}

	state, err := s.pauser.State(ctx)
	if err != nil {
		return v, err
	}
	v.Paused = state.Paused
	if !state.Until.IsZero() {
		until := state.Until
		v.PausedUntil = &until
	}

	if v.Segment != nil {
		v.ElapsedSecs = activity.RoundSecs(v.Segment.Elapsed(now))
		v.ElapsedFormatted = timefmt.FormatDuration(v.ElapsedSecs)
		if v.Segment.App != "" {
			cats, err := s.deps.Store.Categories(ctx)
			if err != nil {
				return v, err
			}
			cat := s.deps.Engine.Classify(v.Segment.App, v.Segment.Title, cats)
			v.Category, v.Color = cat.Name, cat.Color
		}
	}
	return v, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	resp := StatusResponse{
		Status:    health.StatusUnknown,
		Timestamp: s.deps.Engine.Now(),
		DBPath:    s.deps.Store.Path(),
		DeviceID:  s.deps.DeviceID,
		Current:   s.deps.Current.Load(),
	}
	if s.deps.Health != nil {
		h := s.deps.Health.HealthResponse(ctx, true)
		resp.Status = h.Status
		resp.Components = h.Components
	}

	state, err := s.pauser.State(ctx)
	if err != nil {
		s.fail(c, "read pause state", err)
		return
	}
	resp.Paused = state.Paused
	if !state.Until.IsZero() {
		until := state.Until
		resp.PausedUntil = &until
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCurrent(c *gin.Context) {
	v, err := s.currentView(c.Request.Context())
	if err != nil {
		s.fail(c, "current", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// day reads the date query parameter, defaulting to today. It replies 400
// and returns false on a malformed date.
func (s *Server) day(c *gin.Context) (time.Time, bool) {
	d, err := timefmt.ParseDay(c.Query("date"), s.deps.Engine.Now(), s.deps.Engine.Location())
	if err != nil {
		s.badRequest(c, "INVALID_DATE", err)
		return time.Time{}, false
	}
	return d, true
}

func (s *Server) handleEvents(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	events, err := s.deps.Engine.Events(c.Request.Context(), day)
	if err != nil {
		s.fail(c, "events", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) handleSummary(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	switch c.DefaultQuery("group", "title") {
	case "title":
		groups, err := s.deps.Engine.Summary(ctx, day)
		if err != nil {
			s.fail(c, "summary", err)
			return
		}
		c.JSON(http.StatusOK, groups)
	case "app":
		groups, err := s.deps.Engine.AppSummary(ctx, day)
		if err != nil {
			s.fail(c, "app summary", err)
			return
		}
		c.JSON(http.StatusOK, groups)
	default:
		s.badRequest(c, "INVALID_GROUP", errInvalidGroup)
	}
}

func (s *Server) handleTimeline(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	blocks, err := s.deps.Engine.Timeline(c.Request.Context(), day)
	if err != nil {
		s.fail(c, "timeline", err)
		return
	}
	c.JSON(http.StatusOK, blocks)
}

func (s *Server) handleHistory(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > MaxHistoryDays {
		s.badRequest(c, "INVALID_DAYS", errInvalidDays)
		return
	}
	hist, err := s.deps.Engine.History(c.Request.Context(), days)
	if err != nil {
		s.fail(c, "history", err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (s *Server) handleFocus(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	focus, err := s.deps.Engine.Focus(c.Request.Context(), day)
	if err != nil {
		s.fail(c, "focus", err)
		return
	}
	c.JSON(http.StatusOK, focus)
}

func (s *Server) handleCategoryTotals(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	totals, err := s.deps.Engine.CategoryTotals(c.Request.Context(), day)
	if err != nil {
		s.fail(c, "category totals", err)
		return
	}
	c.JSON(http.StatusOK, totals)
}
