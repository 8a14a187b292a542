package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"atracker/internal/aggregate"
	"atracker/internal/bundle"
	"atracker/internal/timefmt"
)

// MaxImportBytes caps the import body.
const MaxImportBytes = 1 << 20

var errRangeOrder = errors.New("end is before start")

// handleExport streams persisted events from the start day through the end
// day, both inclusive. Both default to today.
func (s *Server) handleExport(c *gin.Context) {
	now, loc := s.deps.Engine.Now(), s.deps.Engine.Location()
	start, err := timefmt.ParseDay(c.Query("start"), now, loc)
	if err != nil {
		s.badRequest(c, "INVALID_DATE", err)
		return
	}
	last := start
	if v := c.Query("end"); v != "" {
		if last, err = timefmt.ParseDay(v, now, loc); err != nil {
			s.badRequest(c, "INVALID_DATE", err)
			return
		}
	}
	if last.Before(start) {
		s.badRequest(c, "INVALID_RANGE", errRangeOrder)
		return
	}
	_, end := timefmt.DayBounds(last, loc)

	format := c.DefaultQuery("format", aggregate.FormatCSV)
	contentType := "text/csv; charset=utf-8"
	switch format {
	case aggregate.FormatCSV:
	case aggregate.FormatJSON:
		contentType = "application/x-ndjson"
	default:
		s.badRequest(c, "INVALID_FORMAT", fmt.Errorf("unsupported export format %q", format))
		return
	}

	name := fmt.Sprintf("atracker-%s-%s.%s",
		start.Format(timefmt.DayLayout), last.Format(timefmt.DayLayout), format)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)

	n, err := s.deps.Engine.Export(c.Request.Context(), c.Writer, start, end, format)
	if err != nil {
		// Headers are gone; all we can do is log.
		s.logger.WithContext(c.Request.Context()).Error("export failed", "error", err, "written", n)
		return
	}
	s.logger.WithContext(c.Request.Context()).Debug("export done", "events", n, "format", format)
}

func (s *Server) handleImport(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxImportBytes+1))
	if err != nil {
		s.badRequest(c, "INVALID_REQUEST", err)
		return
	}
	if len(data) > MaxImportBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: fmt.Sprintf("bundle exceeds %d bytes", MaxImportBytes),
			Code:  "TOO_LARGE",
		})
		return
	}

	b, err := bundle.Parse(data)
	if err != nil {
		s.fail(c, "parse bundle", err)
		return
	}
	res, err := bundle.Import(c.Request.Context(), s.deps.Store, b)
	if err != nil {
		s.fail(c, "import bundle", err)
		return
	}
	s.logger.WithContext(c.Request.Context()).Info("bundle imported",
		"categories", res.Categories,
		"filters", res.Filters,
		"exported_at", b.ExportedAt.Format(time.RFC3339),
	)
	c.JSON(http.StatusOK, res)
}
