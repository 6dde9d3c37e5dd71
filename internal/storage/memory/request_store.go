package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// MemoryRequestStore keeps fund requests in process. One mutex guards every
// request, which makes each compare-and-set trivially linearizable.
type MemoryRequestStore struct {
	mu       sync.Mutex
	requests map[string]models.FundRequest
	order    []string // insertion order, for newest-first listings
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		requests: make(map[string]models.FundRequest),
	}
}

func (m *MemoryRequestStore) Insert(ctx context.Context, req models.FundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.requests[req.ID]; exists {
		return fmt.Errorf("request %s already exists: %w", req.ID, xerrors.ErrInvalidInput)
	}
	m.requests[req.ID] = cloneRequest(req)
	m.order = append(m.order, req.ID)
	return nil
}

func (m *MemoryRequestStore) Get(ctx context.Context, requestID string) (models.FundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return models.FundRequest{}, fmt.Errorf("request %s: %w", requestID, xerrors.ErrRequestNotFound)
	}
	return cloneRequest(req), nil
}

func (m *MemoryRequestStore) List(ctx context.Context, filter interfaces.RequestFilter) ([]models.FundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.FundRequest
	for i := len(m.order) - 1; i >= 0; i-- {
		req := m.requests[m.order[i]]
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		result = append(result, cloneRequest(req))
	}
	return result, nil
}

func (m *MemoryRequestStore) Claim(ctx context.Context, requestID, token string, at time.Time) (models.FundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return models.FundRequest{}, fmt.Errorf("request %s: %w", requestID, xerrors.ErrRequestNotFound)
	}
	if err := checkPending(req, models.StatusApproved, ""); err != nil {
		return models.FundRequest{}, err
	}

	req.ClaimToken = &token
	req.ClaimedAt = &at
	req.UpdatedAt = at
	m.requests[requestID] = req
	return cloneRequest(req), nil
}

func (m *MemoryRequestStore) ReleaseClaim(ctx context.Context, requestID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return fmt.Errorf("request %s: %w", requestID, xerrors.ErrRequestNotFound)
	}
	if !req.Claimed() || *req.ClaimToken != token {
		snapshot := cloneRequest(req)
		return &xerrors.TransitionError{
			RequestID: requestID,
			From:      req.Status,
			To:        req.Status,
			Reason:    "claim is not held by caller",
			Request:   &snapshot,
		}
	}
	req.ClaimToken = nil
	req.ClaimedAt = nil
	m.requests[requestID] = req
	return nil
}

func (m *MemoryRequestStore) UpdateStatus(ctx context.Context, update interfaces.StatusUpdate) (models.FundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[update.RequestID]
	if !ok {
		return models.FundRequest{}, fmt.Errorf("request %s: %w", update.RequestID, xerrors.ErrRequestNotFound)
	}
	if err := checkPending(req, update.To, update.ClaimToken); err != nil {
		return models.FundRequest{}, err
	}

	req.Status = update.To
	req.ApproverID = update.ApproverID
	req.ClaimToken = nil
	req.ClaimedAt = nil
	req.UpdatedAt = update.At
	m.requests[update.RequestID] = req
	return cloneRequest(req), nil
}

// checkPending is the compare half of every compare-and-set.
func checkPending(req models.FundRequest, to models.RequestStatus, token string) error {
	return xerrors.TransitionConflict(cloneRequest(req), to, token)
}

// cloneRequest copies the pointer fields so callers never share state with the map.
func cloneRequest(req models.FundRequest) models.FundRequest {
	if req.Description != nil {
		d := *req.Description
		req.Description = &d
	}
	if req.Deadline != nil {
		d := *req.Deadline
		req.Deadline = &d
	}
	if req.ApproverID != nil {
		a := *req.ApproverID
		req.ApproverID = &a
	}
	if req.ClaimToken != nil {
		c := *req.ClaimToken
		req.ClaimToken = &c
	}
	if req.ClaimedAt != nil {
		c := *req.ClaimedAt
		req.ClaimedAt = &c
	}
	return req
}

var _ interfaces.FundRequestStore = (*MemoryRequestStore)(nil)
