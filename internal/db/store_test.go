package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"leadchat/internal/domain"
)

// Runs against a real Postgres when LEADCHAT_TEST_DSN is set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LEADCHAT_TEST_DSN")
	if dsn == "" {
		t.Skip("LEADCHAT_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStoreSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.StartSession(ctx, id, domain.ThemeLogic, now))
	require.NoError(t, s.SaveTurn(ctx, id, 1, domain.Turn{Speaker: domain.SpeakerAgent, Text: "halo", At: now}))
	require.NoError(t, s.SaveTurn(ctx, id, 2, domain.Turn{Speaker: domain.SpeakerUser, Text: "nama saya Rudi", At: now}))

	turns, err := s.Transcript(ctx, id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, domain.SpeakerUser, turns[1].Speaker)

	lead := domain.NewLeadNotification(id, domain.ThemeLogic, domain.LeadRecord{
		Name: "Rudi", Email: "rudi@test.com", Phone: "081234567890", Need: "website",
	}, domain.CloseReasonUserEnded, now)
	require.NoError(t, s.SaveLead(ctx, lead))

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Rudi", got.Name)
	require.Equal(t, LeadSourceChat, got.Source)
	require.Nil(t, got.AckedAt)

	require.NoError(t, s.MarkLeadAcked(ctx, id, now))
	got, err = s.GetLead(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.AckedAt)
}

func TestStoreMissingLead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetLead(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrLeadNotFound)
	require.ErrorIs(t, s.MarkLeadAcked(ctx, uuid.NewString(), time.Now()), ErrLeadNotFound)
}
