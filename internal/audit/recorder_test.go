package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/audit/audittest"
)

func TestRecordSwallowsWriteFailures(t *testing.T) {
	repo := audittest.New()
	repo.FailWrites = true
	var buf bytes.Buffer
	rec := audit.NewRecorder(repo, slog.New(slog.NewTextHandler(&buf, nil)))

	rec.Record(context.Background(), audit.Entry{Action: audit.ActionCheckout, ItemType: audit.ItemAsset, ItemID: 1})

	require.Empty(t, repo.Records())
	require.Contains(t, buf.String(), "audit record")
}

func TestRecordRejectsIncompleteEntry(t *testing.T) {
	repo := audittest.New()
	rec := audit.NewRecorder(repo, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	rec.Record(context.Background(), audit.Entry{ItemType: audit.ItemAsset})

	require.Empty(t, repo.Records())
}

func TestRecordStampsTime(t *testing.T) {
	repo := audittest.New()
	rec := audit.NewRecorder(repo, nil)

	rec.Record(context.Background(), audit.Entry{Action: audit.ActionAssign, ItemType: audit.ItemPool, ItemID: 3, UserID: audit.Actor(9)})

	records := repo.Records()
	require.Len(t, records, 1)
	require.False(t, records[0].At.IsZero())
	require.NotNil(t, records[0].UserID)
	require.EqualValues(t, 9, *records[0].UserID)
}

type execCall struct {
	sql  string
	args []any
}

type recordingExec struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (e *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.calls = append(e.calls, execCall{sql: sql, args: args})
	return e.tag, e.err
}

func TestAnonymizeActorAppendsDeletedNote(t *testing.T) {
	exec := &recordingExec{tag: pgconn.NewCommandTag("UPDATE 2")}

	n, err := audit.AnonymizeActor(context.Background(), exec, 42, " jdoe ")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Len(t, exec.calls, 1)
	require.Contains(t, exec.calls[0].sql, "SET user_id = NULL")
	require.Equal(t, []any{int64(42), "[User deleted: jdoe]"}, exec.calls[0].args)
}

func TestAnonymizeActorWrapsFailure(t *testing.T) {
	dbErr := errors.New("db down")
	exec := &recordingExec{err: dbErr}

	_, err := audit.AnonymizeActor(context.Background(), exec, 42, "jdoe")
	require.ErrorIs(t, err, dbErr)
}

func TestAnonymizeActorRequiresUser(t *testing.T) {
	exec := &recordingExec{}

	_, err := audit.AnonymizeActor(context.Background(), exec, 0, "jdoe")
	require.Error(t, err)
	require.Empty(t, exec.calls)
}

func TestListPaging(t *testing.T) {
	repo := audittest.New()
	rec := audit.NewRecorder(repo, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec.Record(ctx, audit.Entry{Action: audit.ActionAssign, ItemType: audit.ItemPool, ItemID: int64(i + 1), At: base.Add(time.Duration(i) * time.Minute)})
	}

	page, err := rec.List(ctx, audit.Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.True(t, page.Paging.HasNext)
	require.Equal(t, 2, page.Paging.NextPage)
	require.EqualValues(t, 1, page.Records[0].ItemID)

	page, err = rec.List(ctx, audit.Filter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.False(t, page.Paging.HasNext)
	require.Equal(t, 2, page.Paging.PrevPage)
}
