package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-assets/internal/platform/httpx"
)

// Handler serves the read-only activity feed. Callers mount it behind an
// activity/view authorization check.
type Handler struct {
	logger   *slog.Logger
	recorder *Recorder
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, recorder *Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, recorder: recorder}
}

// MountRoutes registers the feed on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

type recordResponse struct {
	ID       int64     `json:"id"`
	Action   Action    `json:"action"`
	ItemType string    `json:"item_type"`
	ItemID   int64     `json:"item_id"`
	UserID   *int64    `json:"user_id"`
	At       time.Time `json:"at"`
	Notes    string    `json:"notes,omitempty"`
}

type pageResponse struct {
	Records  []recordResponse `json:"records"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	HasNext  bool             `json:"has_next"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	page, err := h.recorder.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list activity", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := pageResponse{
		Records:  make([]recordResponse, 0, len(page.Records)),
		Page:     page.Paging.Page,
		PageSize: page.Paging.PageSize,
		HasNext:  page.Paging.HasNext,
	}
	for _, rec := range page.Records {
		out.Records = append(out.Records, recordResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{ItemType: q.Get("item_type")}
	for key, dst := range map[string]*int64{"item_id": &filter.ItemID, "user_id": &filter.UserID} {
		if raw := q.Get(key); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Filter{}, err
			}
			*dst = v
		}
	}
	for key, dst := range map[string]*int{"page": &filter.Page, "page_size": &filter.PageSize} {
		if raw := q.Get(key); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return Filter{}, err
			}
			*dst = v
		}
	}
	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(key); raw != "" {
			v, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return Filter{}, err
			}
			*dst = v
		}
	}
	return filter, nil
}
