package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

type recorder struct {
	mu   sync.Mutex
	sent []interfaces.Notification
	err  error
}

func (r *recorder) Send(ctx context.Context, n interfaces.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestHTTPNotifierPostsJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL+"/", time.Second)
	err := n.Send(context.Background(), interfaces.Notification{UserID: "c1", Title: "Request approved", Message: "ok", Category: CategoryRequestApproved})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"userId": "c1", "title": "Request approved", "message": "ok", "type": "REQUEST_APPROVED"}, got)
}

func TestHTTPNotifierReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPNotifier(srv.URL, time.Second).Send(context.Background(), interfaces.Notification{UserID: "c1"})
	assert.ErrorIs(t, err, xerrors.ErrNotificationDeliveryFailure)
}

func parentsStore(t *testing.T) *memory.MemoryAccountStore {
	t.Helper()
	accounts := memory.NewMemoryAccountStore()
	require.NoError(t, accounts.CreateAccount(context.Background(), models.Account{ID: "p1", Name: "Mum", Role: models.RoleParent, Balance: decimal.NewFromInt(1)}))
	require.NoError(t, accounts.CreateAccount(context.Background(), models.Account{ID: "c1", Name: "Kid", Role: models.RoleChild, Balance: decimal.NewFromInt(1)}))
	return accounts
}

func TestDirectoryPrefersUserService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/parents", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id": 7, "name": "Mum"}, {"id": "p9"}]`))
	}))
	defer srv.Close()

	ids, err := NewDirectory(srv.URL, time.Second, parentsStore(t), nil).ParentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "p9"}, ids)
}

func TestDirectoryFallsBackToAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ids, err := NewDirectory(srv.URL, time.Second, parentsStore(t), nil).ParentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer empty.Close()

	ids, err = NewDirectory(empty.URL, time.Second, parentsStore(t), nil).ParentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	ids, err = NewDirectory("", time.Second, memory.NewMemoryAccountStore(), nil).ParentIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDispatcherDeliversAndFlushesOnStop(t *testing.T) {
	target := &recorder{}
	d := NewDispatcher(target, 10, 2, time.Second, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Send(context.Background(), interfaces.Notification{UserID: "c1"}))
	}
	require.Eventually(t, func() bool { return target.count() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcherFullQueueFailsFast(t *testing.T) {
	d := NewDispatcher(&recorder{}, 1, 1, time.Second, nil, nil)

	require.NoError(t, d.Send(context.Background(), interfaces.Notification{UserID: "c1"}))
	err := d.Send(context.Background(), interfaces.Notification{UserID: "c2"})
	assert.ErrorIs(t, err, xerrors.ErrNotificationDeliveryFailure)
}

func TestDispatcherSwallowsSendErrors(t *testing.T) {
	target := &recorder{err: errors.New("boom")}
	d := NewDispatcher(target, 4, 1, time.Second, nil, nil)
	require.NoError(t, d.Send(context.Background(), interfaces.Notification{UserID: "c1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// queued work is still attempted on shutdown, and the error stays inside
	assert.NoError(t, d.Run(ctx))
	assert.Equal(t, 0, target.count())
}

func TestMessages(t *testing.T) {
	req := models.FundRequest{RequesterID: "c1", RequesterName: "Kid", Title: "books", Amount: decimal.NewFromInt(500_000)}

	created := RequestCreated("p1", req)
	assert.Equal(t, "p1", created.UserID)
	assert.Equal(t, CategoryFundRequest, created.Category)
	assert.Contains(t, created.Message, "500000")

	approved := RequestApproved(req)
	assert.Equal(t, "c1", approved.UserID)
	assert.Equal(t, CategoryRequestApproved, approved.Category)

	assert.Equal(t, CategoryRequestRejected, RequestRejected(req).Category)
}
