package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

const requestColumns = `id, requester_id, requester_name, title, description, amount, deadline,
	status, approver_id, claim_token, claimed_at, created_at, updated_at`

// PostgresRequestStore makes every state change a conditional UPDATE, so the
// row lock postgres takes for the statement is what linearizes transitions.
type PostgresRequestStore struct {
	db *sql.DB
}

func NewPostgresRequestStore(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{
		db: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (models.FundRequest, error) {
	var (
		req         models.FundRequest
		description sql.NullString
		deadline    sql.NullTime
		approverID  sql.NullString
		claimToken  sql.NullString
		claimedAt   sql.NullTime
	)
	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.RequesterName,
		&req.Title,
		&description,
		&req.Amount,
		&deadline,
		&req.Status,
		&approverID,
		&claimToken,
		&claimedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return models.FundRequest{}, err
	}
	if description.Valid {
		req.Description = &description.String
	}
	if deadline.Valid {
		req.Deadline = &deadline.Time
	}
	if approverID.Valid {
		req.ApproverID = &approverID.String
	}
	if claimToken.Valid {
		req.ClaimToken = &claimToken.String
	}
	if claimedAt.Valid {
		req.ClaimedAt = &claimedAt.Time
	}
	return req, nil
}

func (p *PostgresRequestStore) Insert(ctx context.Context, req models.FundRequest) error {
	const query = `INSERT INTO fund_requests (id, requester_id, requester_name, title, description, amount,
	deadline, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var deadline sql.NullTime
	if req.Deadline != nil {
		deadline = sql.NullTime{Time: *req.Deadline, Valid: true}
	}
	var description sql.NullString
	if req.Description != nil {
		description = sql.NullString{String: *req.Description, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		req.ID,
		req.RequesterID,
		req.RequesterName,
		req.Title,
		description,
		req.Amount,
		deadline,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("request %s already exists: %w", req.ID, xerrors.ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("insert fund request: %w", err)
	}
	return nil
}

func (p *PostgresRequestStore) Get(ctx context.Context, requestID string) (models.FundRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM fund_requests WHERE id = $1`

	req, err := scanRequest(p.db.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FundRequest{}, fmt.Errorf("request %s: %w", requestID, xerrors.ErrRequestNotFound)
	}
	if err != nil {
		return models.FundRequest{}, fmt.Errorf("get fund request: %w", err)
	}
	return req, nil
}

func (p *PostgresRequestStore) List(ctx context.Context, filter interfaces.RequestFilter) ([]models.FundRequest, error) {
	var (
		where []string
		args  []any
	)
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + requestColumns + ` FROM fund_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fund requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FundRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (p *PostgresRequestStore) Claim(ctx context.Context, requestID, token string, at time.Time) (models.FundRequest, error) {
	query := `UPDATE fund_requests SET claim_token = $2, claimed_at = $3, updated_at = $3
	WHERE id = $1 AND status = 'PENDING' AND claim_token IS NULL
	RETURNING ` + requestColumns

	req, err := scanRequest(p.db.QueryRowContext(ctx, query, requestID, token, at))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FundRequest{}, p.conflict(ctx, requestID, models.StatusApproved, "")
	}
	if err != nil {
		return models.FundRequest{}, fmt.Errorf("claim fund request: %w", err)
	}
	return req, nil
}

func (p *PostgresRequestStore) ReleaseClaim(ctx context.Context, requestID, token string) error {
	const query = `UPDATE fund_requests SET claim_token = NULL, claimed_at = NULL
	WHERE id = $1 AND claim_token = $2`

	res, err := p.db.ExecContext(ctx, query, requestID, token)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		current, err := p.Get(ctx, requestID)
		if err != nil {
			return err
		}
		return &xerrors.TransitionError{
			RequestID: requestID,
			From:      current.Status,
			To:        current.Status,
			Reason:    "claim is not held by caller",
			Request:   &current,
		}
	}
	return nil
}

func (p *PostgresRequestStore) UpdateStatus(ctx context.Context, update interfaces.StatusUpdate) (models.FundRequest, error) {
	query := `UPDATE fund_requests
	SET status = $2, approver_id = $3, claim_token = NULL, claimed_at = NULL, updated_at = $4
	WHERE id = $1 AND status = 'PENDING' AND claim_token IS NOT DISTINCT FROM $5
	RETURNING ` + requestColumns

	var approverID sql.NullString
	if update.ApproverID != nil {
		approverID = sql.NullString{String: *update.ApproverID, Valid: true}
	}

	req, err := scanRequest(p.db.QueryRowContext(ctx, query,
		update.RequestID,
		update.To,
		approverID,
		update.At,
		nullString(update.ClaimToken),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FundRequest{}, p.conflict(ctx, update.RequestID, update.To, update.ClaimToken)
	}
	if err != nil {
		return models.FundRequest{}, fmt.Errorf("update fund request status: %w", err)
	}
	return req, nil
}

// conflict explains why a conditional UPDATE matched no row.
func (p *PostgresRequestStore) conflict(ctx context.Context, requestID string, to models.RequestStatus, token string) error {
	current, err := p.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if cerr := xerrors.TransitionConflict(current, to, token); cerr != nil {
		return cerr
	}
	// the row changed back between the UPDATE and the read
	return &xerrors.TransitionError{
		RequestID: requestID,
		From:      current.Status,
		To:        to,
		Reason:    "concurrent update",
		Request:   &current,
	}
}

var _ interfaces.FundRequestStore = (*PostgresRequestStore)(nil)
