package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nexushq/nexus/internal/audit"
	"github.com/nexushq/nexus/internal/authz"
	"github.com/nexushq/nexus/internal/platform/httpx"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Handler serves the audit timeline over JSON.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	guard   authz.Middleware
	now     func() time.Time
}

// NewHandler builds an audit timeline handler.
func NewHandler(logger *slog.Logger, service TimelineService, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		guard:   guard,
		now:     time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Error(w, http.StatusNotImplemented, "not_implemented", "")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		var v validationError
		if errors.As(err, &v) {
			httpx.Error(w, http.StatusBadRequest, "invalid_filter", v.field)
			return
		}
		h.logger.Error("validate filters", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	entries := make([]entryView, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, entryView{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     string(e.Action),
			Details:    e.Details,
			SourceAddr: e.SourceAddr,
			OccurredAt: e.OccurredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Entries: entries,
		Paging: pagingView{
			Page:     result.Paging.Page,
			PageSize: result.Paging.PageSize,
			HasNext:  result.Paging.HasNext,
		},
	})
}

type timelineResponse struct {
	Entries []entryView `json:"entries"`
	Paging  pagingView  `json:"paging"`
}

type entryView struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	SourceAddr string         `json:"source_addr,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type pagingView struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	now := h.now().UTC()
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "to"}
	}
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}

	filters := audit.TimelineFilters{
		From:   fromTime,
		To:     toTime.Add(24 * time.Hour),
		Action: audit.Action(strings.TrimSpace(r.URL.Query().Get("action"))),
	}
	if v := strings.TrimSpace(r.URL.Query().Get("actor_id")); v != "" {
		actorID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || actorID <= 0 {
			return audit.TimelineFilters{}, validationError{field: "actor_id"}
		}
		filters.ActorID = actorID
	}
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page"}
		}
		filters.Page = page
	}
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		pageSize, err := strconv.Atoi(v)
		if err != nil || pageSize <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page_size"}
		}
		filters.PageSize = pageSize
	}
	return filters, nil
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
