package accountsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/household-funds-ledger/internal/httpapi"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// remote serves the account routes over a memory store, as the server binary does.
func remote(t *testing.T) *Client {
	t.Helper()
	h := httpapi.NewAccountHandler(memory.NewMemoryAccountStore())
	r := chi.NewRouter()
	r.Get("/accounts", h.List)
	r.Get("/accounts/{id}", h.Get)
	r.Put("/accounts/{id}", h.Put)
	r.Get("/accounts/{id}/balance", h.Balance)
	r.Patch("/accounts/{id}/balance", h.ChangeBalance)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL, time.Second)
}

func TestRemoteAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	c := remote(t)

	require.NoError(t, c.CreateAccount(ctx, models.Account{ID: "p1", Name: "Mum", Role: models.RoleParent, Balance: decimal.NewFromInt(15_000_000)}))
	require.NoError(t, c.CreateAccount(ctx, models.Account{ID: "c1", Name: "Kid", Role: models.RoleChild, Balance: decimal.NewFromInt(3_000_000)}))

	err := c.CreateAccount(ctx, models.Account{ID: "p1", Name: "Again", Role: models.RoleParent})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	account, err := c.GetAccount(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Mum", account.Name)
	assert.Equal(t, models.RoleParent, account.Role)

	parents, err := c.ListByRole(ctx, models.RoleParent)
	require.NoError(t, err)
	require.Len(t, parents, 1)

	balance, err := c.Debit(ctx, "p1", decimal.NewFromInt(500_000))
	require.NoError(t, err)
	assert.Equal(t, "14500000", balance.String())

	balance, err = c.Credit(ctx, "c1", decimal.NewFromInt(500_000))
	require.NoError(t, err)
	assert.Equal(t, "3500000", balance.String())

	balance, err = c.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "3500000", balance.String())
}

func TestRemoteErrorsMapToDomain(t *testing.T) {
	ctx := context.Background()
	c := remote(t)
	require.NoError(t, c.CreateAccount(ctx, models.Account{ID: "c1", Name: "Kid", Role: models.RoleChild, Balance: decimal.NewFromInt(100)}))

	_, err := c.GetAccount(ctx, "ghost")
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)

	_, err = c.Debit(ctx, "c1", decimal.NewFromInt(101))
	assert.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	balance, err := c.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())

	_, err = c.Credit(ctx, "c1", decimal.Zero)
	assert.ErrorIs(t, err, xerrors.ErrInvalidAmount)
}

func TestRemoteDebitsSerialize(t *testing.T) {
	ctx := context.Background()
	c := remote(t)
	require.NoError(t, c.CreateAccount(ctx, models.Account{ID: "p1", Name: "Mum", Role: models.RoleParent, Balance: decimal.NewFromInt(1000)}))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Debit(ctx, "p1", decimal.NewFromInt(100)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, ok)

	balance, err := c.GetBalance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestUnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"error","message":"maintenance"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).GetBalance(context.Background(), "p1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, xerrors.ErrAccountNotFound)
	assert.Contains(t, err.Error(), "503")
}

func TestTransportFailuresReportWhetherApplied(t *testing.T) {
	ctx := context.Background()

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	_, err := New(down.URL, time.Second).Credit(ctx, "c1", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.True(t, xerrors.NotApplied(err), "connection refused never reached the service")

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer slow.Close()
	defer close(release)

	_, err = New(slow.URL, 50*time.Millisecond).Credit(ctx, "c1", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.False(t, xerrors.NotApplied(err), "a timed-out request may have been applied")
}
