package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

func newSessions(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func TestLoadIgnoresUnknownCookieID(t *testing.T) {
	sessions, _ := newSessions(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessions.CookieName(), Value: "chosen-by-client"})

	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, "chosen-by-client", sess.ID)
	require.Empty(t, sess.User())
}

func TestRenewMovesSessionToNewID(t *testing.T) {
	sessions, mr := newSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sessions.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sessions.Commit(ctx, httptest.NewRecorder(), req, sess))
	oldID := sess.ID
	require.True(t, mr.Exists("session:"+oldID))

	require.NoError(t, sessions.Renew(ctx, sess))
	require.NotEqual(t, oldID, sess.ID)
	require.False(t, mr.Exists("session:"+oldID))

	sess.SetUser("42")
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(ctx, rec, req, sess))
	require.True(t, mr.Exists("session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, sess.ID, cookies[0].Value)
}

func TestRenewNilSession(t *testing.T) {
	sessions, _ := newSessions(t)
	require.NoError(t, sessions.Renew(context.Background(), nil))
}
