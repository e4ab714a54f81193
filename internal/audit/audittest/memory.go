// Package audittest provides an in-memory activity log for tests.
package audittest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
)

// ErrWriteFailed is returned by writes while FailWrites is set.
var ErrWriteFailed = errors.New("audittest: write failed")

// Memory implements audit.Repository in memory.
type Memory struct {
	mu         sync.Mutex
	records    []audit.Record
	nextID     int64
	FailWrites bool
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{}
}

// Insert appends a record.
func (m *Memory) Insert(_ context.Context, entry audit.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return 0, ErrWriteFailed
	}
	m.nextID++
	rec := audit.Record{
		ID:       m.nextID,
		Action:   entry.Action,
		ItemType: entry.ItemType,
		ItemID:   entry.ItemID,
		At:       entry.At,
		Notes:    entry.Notes,
	}
	if entry.UserID != nil {
		v := *entry.UserID
		rec.UserID = &v
	}
	m.records = append(m.records, rec)
	return rec.ID, nil
}

// AnonymizeActor detaches records of userID the way audit.AnonymizeActor
// does in PostgreSQL.
func (m *Memory) AnonymizeActor(_ context.Context, userID int64, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return 0, ErrWriteFailed
	}
	note := audit.DeletedUserNote(strings.TrimSpace(username))
	var n int64
	for i := range m.records {
		rec := &m.records[i]
		if rec.UserID == nil || *rec.UserID != userID {
			continue
		}
		rec.UserID = nil
		if rec.Notes == "" {
			rec.Notes = note
		} else {
			rec.Notes += " " + note
		}
		n++
	}
	return n, nil
}

// List filters and pages records by timestamp.
func (m *Memory) List(_ context.Context, filter audit.Filter, offset, limit int) ([]audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, rec := range m.records {
		if filter.ItemType != "" && rec.ItemType != filter.ItemType {
			continue
		}
		if filter.ItemID != 0 && rec.ItemID != filter.ItemID {
			continue
		}
		if filter.UserID != 0 && (rec.UserID == nil || *rec.UserID != filter.UserID) {
			continue
		}
		if !filter.From.IsZero() && rec.At.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !rec.At.Before(filter.To) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Records returns a copy of every stored record in insertion order.
func (m *Memory) Records() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Record, len(m.records))
	copy(out, m.records)
	return out
}

var _ audit.Repository = (*Memory)(nil)
