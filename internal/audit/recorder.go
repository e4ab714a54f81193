package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Repository stores activity records.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (int64, error)
	List(ctx context.Context, filter Filter, offset, limit int) ([]Record, error)
}

// Recorder is the append-only activity log used by the lifecycle services.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder. A nil logger falls back to slog.Default.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends entry. Failures are logged and never returned: the
// caller's business operation must not fail because of the audit trail.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.repo == nil {
		return
	}
	if entry.Action == "" || entry.ItemType == "" {
		r.logger.Error("audit record rejected", slog.String("action", string(entry.Action)), slog.String("item_type", entry.ItemType))
		return
	}
	if entry.At.IsZero() {
		entry.At = r.now()
	}
	if _, err := r.repo.Insert(ctx, entry); err != nil {
		r.logger.Error("audit record",
			slog.String("action", string(entry.Action)),
			slog.String("item_type", entry.ItemType),
			slog.Int64("item_id", entry.ItemID),
			slog.Any("error", err),
		)
	}
}

// List returns a page of records ordered by timestamp.
func (r *Recorder) List(ctx context.Context, filter Filter) (Page, error) {
	if r == nil || r.repo == nil {
		return Page{}, errors.New("audit: recorder not configured")
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	rows, err := r.repo.List(ctx, filter, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Page{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Page{Records: rows, Paging: paging}, nil
}
