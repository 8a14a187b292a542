package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"atracker/internal/activity"
)

var (
	errInvalidGroup = errors.New("group must be app or title")
	errInvalidDays  = errors.New("days must be between 1 and 366")
)

type categoryRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	AppPattern     string `json:"app_pattern" validate:"required_without=TitlePattern"`
	TitlePattern   string `json:"title_pattern" validate:"required_without=AppPattern"`
	CaseSensitive  bool   `json:"case_sensitive"`
	Color          string `json:"color" validate:"omitempty,hexcolor"`
	DailyGoalSecs  int64  `json:"daily_goal_secs" validate:"gte=0"`
	DailyLimitSecs int64  `json:"daily_limit_secs" validate:"gte=0"`
}

func (r categoryRequest) category(id string) *activity.Category {
	return &activity.Category{
		ID:             id,
		Name:           r.Name,
		AppPattern:     r.AppPattern,
		TitlePattern:   r.TitlePattern,
		CaseSensitive:  r.CaseSensitive,
		Color:          r.Color,
		DailyGoalSecs:  r.DailyGoalSecs,
		DailyLimitSecs: r.DailyLimitSecs,
	}
}

type filterRequest struct {
	RuleType     string `json:"rule_type" validate:"required,oneof=ignore redact"`
	AppPattern   string `json:"app_pattern" validate:"required_without=TitlePattern"`
	TitlePattern string `json:"title_pattern" validate:"required_without=AppPattern"`
}

func (r filterRequest) rule(id string) *activity.FilterRule {
	return &activity.FilterRule{
		ID:           id,
		Type:         activity.RuleType(r.RuleType),
		AppPattern:   r.AppPattern,
		TitlePattern: r.TitlePattern,
	}
}

type reorderRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// bind decodes the JSON body into req and runs struct validation. It replies
// 400 and returns false on failure.
func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.badRequest(c, "INVALID_REQUEST", err)
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		s.badRequest(c, "VALIDATION_FAILED", err)
		return false
	}
	return true
}

func (s *Server) forget(id string) {
	if s.deps.Patterns != nil {
		s.deps.Patterns.Forget(id)
	}
}

func (s *Server) handleListCategories(c *gin.Context) {
	cats, err := s.deps.Store.Categories(c.Request.Context())
	if err != nil {
		s.fail(c, "list categories", err)
		return
	}
	if cats == nil {
		cats = []activity.Category{}
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(c *gin.Context) {
	var req categoryRequest
	if !s.bind(c, &req) {
		return
	}
	cat := req.category("")
	if err := s.deps.Store.CreateCategory(c.Request.Context(), cat); err != nil {
		s.fail(c, "create category", err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (s *Server) handleUpdateCategory(c *gin.Context) {
	var req categoryRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.deps.Store.UpdateCategory(ctx, req.category(id)); err != nil {
		s.fail(c, "update category", err)
		return
	}
	s.forget(id)

	cat, err := s.deps.Store.Category(ctx, id)
	if err != nil {
		s.fail(c, "get category", err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Store.DeleteCategory(c.Request.Context(), id); err != nil {
		s.fail(c, "delete category", err)
		return
	}
	s.forget(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReorderCategories(c *gin.Context) {
	var req reorderRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if err := s.deps.Store.ReorderCategories(ctx, req.IDs); err != nil {
		s.fail(c, "reorder categories", err)
		return
	}
	s.handleListCategories(c)
}

func (s *Server) handleListFilters(c *gin.Context) {
	rules, err := s.deps.Store.FilterRules(c.Request.Context())
	if err != nil {
		s.fail(c, "list filters", err)
		return
	}
	if rules == nil {
		rules = []activity.FilterRule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) handleCreateFilter(c *gin.Context) {
	var req filterRequest
	if !s.bind(c, &req) {
		return
	}
	rule := req.rule("")
	if err := s.deps.Store.CreateFilterRule(c.Request.Context(), rule); err != nil {
		s.fail(c, "create filter", err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) handleUpdateFilter(c *gin.Context) {
	var req filterRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.deps.Store.UpdateFilterRule(ctx, req.rule(id)); err != nil {
		s.fail(c, "update filter", err)
		return
	}
	s.forget(id)

	rule, err := s.deps.Store.FilterRule(ctx, id)
	if err != nil {
		s.fail(c, "get filter", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) handleDeleteFilter(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Store.DeleteFilterRule(c.Request.Context(), id); err != nil {
		s.fail(c, "delete filter", err)
		return
	}
	s.forget(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReorderFilters(c *gin.Context) {
	var req reorderRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.deps.Store.ReorderFilterRules(c.Request.Context(), req.IDs); err != nil {
		s.fail(c, "reorder filters", err)
		return
	}
	s.handleListFilters(c)
}
