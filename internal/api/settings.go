package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"atracker/internal/activity"
)

// SettingsResponse is the body of GET and PUT /api/settings.
type SettingsResponse struct {
	PollIntervalSecs  float64    `json:"poll_interval_secs"`
	IdleThresholdSecs float64    `json:"idle_threshold_secs"`
	Paused            bool       `json:"paused"`
	PausedUntil       *time.Time `json:"paused_until,omitempty"`
}

// settingsRequest bounds match config.MinPollIntervalSecs and friends.
type settingsRequest struct {
	PollIntervalSecs  *float64 `json:"poll_interval_secs" validate:"omitempty,gte=1,lte=300"`
	IdleThresholdSecs *float64 `json:"idle_threshold_secs" validate:"omitempty,gte=10,lte=86400"`
}

type pauseRequest struct {
	Minutes int `json:"minutes" validate:"gte=0,lte=10080"`
}

func (s *Server) settingsResponse(c *gin.Context) (SettingsResponse, bool) {
	ctx := c.Request.Context()
	kv, err := s.deps.Store.Settings(ctx)
	if err != nil {
		s.fail(c, "read settings", err)
		return SettingsResponse{}, false
	}
	settings, err := activity.ParseSettings(kv, activity.DefaultSettings())
	if err != nil {
		s.logger.Warn("stored settings are malformed, reporting defaults", "error", err)
	}
	state, err := s.pauser.State(ctx)
	if err != nil {
		s.fail(c, "read pause state", err)
		return SettingsResponse{}, false
	}

	resp := SettingsResponse{
		PollIntervalSecs:  settings.PollInterval.Seconds(),
		IdleThresholdSecs: settings.IdleThreshold.Seconds(),
		Paused:            state.Paused,
	}
	if !state.Until.IsZero() {
		until := state.Until
		resp.PausedUntil = &until
	}
	return resp, true
}

func (s *Server) handleGetSettings(c *gin.Context) {
	resp, ok := s.settingsResponse(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handlePutSettings stores the new values. The segmentation machine picks
// them up on its next settings reload.
func (s *Server) handlePutSettings(c *gin.Context) {
	var req settingsRequest
	if !s.bind(c, &req) {
		return
	}
	kv := make(map[string]string, 2)
	if req.PollIntervalSecs != nil {
		kv[activity.SettingPollInterval] = formatSecs(*req.PollIntervalSecs)
	}
	if req.IdleThresholdSecs != nil {
		kv[activity.SettingIdleThreshold] = formatSecs(*req.IdleThresholdSecs)
	}
	if len(kv) > 0 {
		if err := s.deps.Store.SetSettings(c.Request.Context(), kv); err != nil {
			s.fail(c, "write settings", err)
			return
		}
		s.logger.WithContext(c.Request.Context()).Info("settings updated", "values", kv)
	}
	s.handleGetSettings(c)
}

func (s *Server) handlePause(c *gin.Context) {
	var req pauseRequest
	if c.Request.ContentLength != 0 {
		if !s.bind(c, &req) {
			return
		}
	}
	state, err := s.pauser.Pause(c.Request.Context(), time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		s.fail(c, "pause", err)
		return
	}
	s.logger.WithContext(c.Request.Context()).Info("tracking paused", "minutes", req.Minutes)
	s.notify()
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.pauser.Resume(c.Request.Context()); err != nil {
		s.fail(c, "resume", err)
		return
	}
	s.logger.WithContext(c.Request.Context()).Info("tracking resumed")
	s.notify()
	c.JSON(http.StatusOK, activity.PauseState{})
}

func formatSecs(v float64) string {
	return fmt.Sprintf("%g", v)
}
