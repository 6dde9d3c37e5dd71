package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

func (p *PostgresLedgerStore) Append(ctx context.Context, record models.TransactionRecord) (string, error) {
	if record.ID == "" || record.AccountID == "" || !record.Kind.Valid() {
		return "", xerrors.ErrInvalidInput
	}
	if !models.ValidAmount(record.Amount) {
		return "", xerrors.ErrInvalidAmount
	}

	const query = `INSERT INTO ledger_entries (id, account_id, title, amount, kind, request_id, dedupe_key, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (dedupe_key) DO NOTHING
	RETURNING id`

	var id string
	err := p.db.QueryRowContext(ctx, query,
		record.ID,
		record.AccountID,
		record.Title,
		record.Amount,
		record.Kind,
		nullString(record.RequestID),
		nullString(record.DedupeKey),
		record.CreatedAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) && record.DedupeKey != "" {
		return p.idForKey(ctx, record.DedupeKey)
	}
	if isUniqueViolation(err) {
		// same record id already stored by an earlier attempt
		return record.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("append ledger entry: %w", err)
	}
	return id, nil
}

func (p *PostgresLedgerStore) idForKey(ctx context.Context, key string) (string, error) {
	const query = `SELECT id FROM ledger_entries WHERE dedupe_key = $1`

	var id string
	if err := p.db.QueryRowContext(ctx, query, key).Scan(&id); err != nil {
		return "", fmt.Errorf("resolve dedupe key %s: %w", key, err)
	}
	return id, nil
}

func (p *PostgresLedgerStore) History(ctx context.Context, accountID string) ([]models.TransactionRecord, error) {
	const query = `SELECT id, account_id, title, amount, kind, request_id, dedupe_key, created_at
	FROM ledger_entries WHERE account_id = $1
	ORDER BY created_at DESC, seq DESC`

	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *PostgresLedgerStore) FindByKey(ctx context.Context, dedupeKey string) (models.TransactionRecord, bool, error) {
	const query = `SELECT id, account_id, title, amount, kind, request_id, dedupe_key, created_at
	FROM ledger_entries WHERE dedupe_key = $1`

	rec, err := scanRecord(p.db.QueryRowContext(ctx, query, dedupeKey))
	if errors.Is(err, sql.ErrNoRows) {
		return models.TransactionRecord{}, false, nil
	}
	if err != nil {
		return models.TransactionRecord{}, false, fmt.Errorf("find ledger entry %s: %w", dedupeKey, err)
	}
	return rec, true, nil
}

func scanRecord(row rowScanner) (models.TransactionRecord, error) {
	var (
		rec       models.TransactionRecord
		requestID sql.NullString
		dedupeKey sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.AccountID,
		&rec.Title,
		&rec.Amount,
		&rec.Kind,
		&requestID,
		&dedupeKey,
		&rec.CreatedAt,
	); err != nil {
		return models.TransactionRecord{}, err
	}
	rec.RequestID = requestID.String
	rec.DedupeKey = dedupeKey.String
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
