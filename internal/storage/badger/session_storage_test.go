package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

func newTestSessionStorage(t *testing.T) interfaces.SessionStorage {
	t.Helper()
	return NewSessionStorage(newTestDB(t), arbor.NewLogger())
}

func testSession(id string, capturedAt time.Time) *models.AuthSession {
	return &models.AuthSession{
		ID:                 id,
		CapturedAt:         capturedAt,
		StalenessThreshold: 8 * time.Hour,
		Cookies: []*models.SessionCookie{
			{Name: "JSESSIONID", Value: "abc", Domain: "jira.example.com", Path: "/"},
		},
		LocalStorage: map[string]string{"ajs_user_id": "u123"},
		UserAgent:    "Probo-Runner/1.0",
		Validation:   models.SessionValidationValid,
	}
}

func TestStoreAndGetSession(t *testing.T) {
	store := newTestSessionStorage(t)
	ctx := context.Background()

	session := testSession("session_a", time.Now().UTC())
	require.NoError(t, store.StoreSession(ctx, session))

	loaded, err := store.GetSession(ctx, "session_a")
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "JSESSIONID", loaded.Cookies[0].Name)
	assert.Equal(t, "u123", loaded.LocalStorage["ajs_user_id"])
}

func TestStoreSession_RequiresIDAndTimestamp(t *testing.T) {
	store := newTestSessionStorage(t)
	ctx := context.Background()

	err := store.StoreSession(ctx, &models.AuthSession{CapturedAt: time.Now()})
	assert.Error(t, err)

	err = store.StoreSession(ctx, &models.AuthSession{ID: "session_x"})
	assert.Error(t, err)
}

func TestLatestSession(t *testing.T) {
	store := newTestSessionStorage(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.StoreSession(ctx, testSession("session_old", base)))
	require.NoError(t, store.StoreSession(ctx, testSession("session_new", base.Add(2*time.Hour))))
	require.NoError(t, store.StoreSession(ctx, testSession("session_mid", base.Add(time.Hour))))

	latest, err := store.LatestSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "session_new", latest.ID)
}

func TestLatestSession_EmptyStore(t *testing.T) {
	store := newTestSessionStorage(t)

	latest, err := store.LatestSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestDeleteSession(t *testing.T) {
	store := newTestSessionStorage(t)
	ctx := context.Background()

	require.NoError(t, store.StoreSession(ctx, testSession("session_a", time.Now().UTC())))
	require.NoError(t, store.DeleteSession(ctx, "session_a"))

	_, err := store.GetSession(ctx, "session_a")
	assert.Error(t, err)

	// Deleting a missing session is not an error
	assert.NoError(t, store.DeleteSession(ctx, "session_a"))
}
