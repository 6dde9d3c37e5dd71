package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

func pendingRequest(id string) models.FundRequest {
	now := time.Now()
	return models.FundRequest{
		ID:            id,
		RequesterID:   "c1",
		RequesterName: "Kid",
		Title:         "books",
		Amount:        decimal.NewFromInt(500),
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestConcurrentUpdatesLinearize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRequestStore()
	require.NoError(t, store.Insert(ctx, pendingRequest("r1")))

	targets := []models.RequestStatus{models.StatusRejected, models.StatusCancelled}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(to models.RequestStatus) {
			defer wg.Done()
			_, err := store.UpdateStatus(ctx, interfaces.StatusUpdate{RequestID: "r1", To: to, At: time.Now()})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, xerrors.ErrInvalidStateTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}(targets[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestClaimBlocksUnclaimedUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRequestStore()
	require.NoError(t, store.Insert(ctx, pendingRequest("r1")))

	claimed, err := store.Claim(ctx, "r1", "tok", time.Now())
	require.NoError(t, err)
	assert.True(t, claimed.Claimed())
	assert.Equal(t, models.StatusPending, claimed.Status)

	_, err = store.Claim(ctx, "r1", "other", time.Now())
	var terr *xerrors.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "request is being approved", terr.Reason)

	_, err = store.UpdateStatus(ctx, interfaces.StatusUpdate{RequestID: "r1", To: models.StatusCancelled})
	assert.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)

	_, err = store.UpdateStatus(ctx, interfaces.StatusUpdate{RequestID: "r1", To: models.StatusApproved, ClaimToken: "wrong"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)

	approver := "p1"
	done, err := store.UpdateStatus(ctx, interfaces.StatusUpdate{
		RequestID:  "r1",
		To:         models.StatusApproved,
		ClaimToken: "tok",
		ApproverID: &approver,
		At:         time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, done.Status)
	assert.False(t, done.Claimed())
}

func TestReleaseClaimReopensRequest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRequestStore()
	require.NoError(t, store.Insert(ctx, pendingRequest("r1")))

	_, err := store.Claim(ctx, "r1", "tok", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, store.ReleaseClaim(ctx, "r1", "nope"), xerrors.ErrInvalidStateTransition)
	require.NoError(t, store.ReleaseClaim(ctx, "r1", "tok"))

	_, err = store.UpdateStatus(ctx, interfaces.StatusUpdate{RequestID: "r1", To: models.StatusCancelled, At: time.Now()})
	require.NoError(t, err)
}

func TestListFiltersNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRequestStore()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.Insert(ctx, pendingRequest(id)))
	}
	other := pendingRequest("r4")
	other.RequesterID = "c2"
	require.NoError(t, store.Insert(ctx, other))
	_, err := store.UpdateStatus(ctx, interfaces.StatusUpdate{RequestID: "r2", To: models.StatusRejected, At: time.Now()})
	require.NoError(t, err)

	pending, err := store.List(ctx, interfaces.RequestFilter{Status: models.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"r4", "r3", "r1"}, ids(pending))

	mine, err := store.List(ctx, interfaces.RequestFilter{RequesterID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids(mine))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, xerrors.ErrRequestNotFound)
}

func ids(reqs []models.FundRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}
