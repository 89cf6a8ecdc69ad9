package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fd1az/flashloan-executor/business/execution/app"
	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

// Journal implements app.Journal on the execution_attempts table.
type Journal struct {
	pool *pgxpool.Pool
}

var _ app.Journal = (*Journal)(nil)

// NewJournal creates a Journal over pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Record inserts a terminal attempt. Re-recording the same attempt id is a no-op.
func (j *Journal) Record(ctx context.Context, a domain.Attempt) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO execution_attempts (id, opportunity_id, provider, account, planned_nonce, live_nonce,
			tx_hash, broadcasts, state, error_kind, detail, gas_used, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		recordArgs(a)...,
	)
	if err != nil {
		return apperror.New(apperror.CodeJournalError,
			apperror.WithCause(err),
			apperror.WithContext("insert attempt "+a.ID.String()))
	}
	return nil
}

// ListByState returns the most recent attempts in state, newest first.
func (j *Journal) ListByState(ctx context.Context, state domain.State, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.pool.Query(ctx, `
		SELECT id::text, opportunity_id, provider, account, planned_nonce, live_nonce,
			tx_hash, broadcasts, state, error_kind, detail, gas_used, started_at, finished_at
		FROM execution_attempts
		WHERE state = $1
		ORDER BY finished_at DESC
		LIMIT $2`,
		string(state), limit,
	)
	if err != nil {
		return nil, apperror.New(apperror.CodeJournalError,
			apperror.WithCause(err),
			apperror.WithContext("list attempts in "+string(state)))
	}

	attempts, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, apperror.New(apperror.CodeJournalError,
			apperror.WithCause(err),
			apperror.WithContext("scan attempts"))
	}
	return attempts, nil
}

// recordArgs maps an attempt onto the insert columns. Zero hashes and unset
// optional fields are stored as NULL.
func recordArgs(a domain.Attempt) []any {
	var liveNonce, gasUsed *int64
	if a.LiveNonce != nil {
		v := int64(*a.LiveNonce)
		liveNonce = &v
	}
	if a.GasUsed != nil {
		v := int64(*a.GasUsed)
		gasUsed = &v
	}

	return []any{
		a.ID.String(),
		a.OpportunityID,
		a.Provider,
		a.Account.Hex(),
		int64(a.PlannedNonce),
		liveNonce,
		nullIfEmpty(hashString(a.TxHash)),
		a.Broadcasts,
		string(a.State),
		nullIfEmpty(string(a.ErrorKind)),
		nullIfEmpty(a.Detail),
		gasUsed,
		a.StartedAt,
		a.FinishedAt,
	}
}

func scanAttempt(row pgx.CollectableRow) (domain.Attempt, error) {
	var (
		a                  domain.Attempt
		id, account        string
		plannedNonce       int64
		liveNonce, gasUsed *int64
		txHash, errorKind  *string
		detail             *string
		state              string
		startedAt, doneAt  time.Time
	)

	if err := row.Scan(&id, &a.OpportunityID, &a.Provider, &account, &plannedNonce, &liveNonce,
		&txHash, &a.Broadcasts, &state, &errorKind, &detail, &gasUsed, &startedAt, &doneAt); err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("parse attempt id: %w", err)
	}
	a.ID = parsed
	a.Account = common.HexToAddress(account)
	a.PlannedNonce = uint64(plannedNonce)
	if liveNonce != nil {
		v := uint64(*liveNonce)
		a.LiveNonce = &v
	}
	if txHash != nil {
		a.TxHash = common.HexToHash(*txHash)
	}
	a.State = domain.State(state)
	if errorKind != nil {
		a.ErrorKind = domain.ErrorKind(*errorKind)
	}
	if detail != nil {
		a.Detail = *detail
	}
	if gasUsed != nil {
		v := uint64(*gasUsed)
		a.GasUsed = &v
	}
	a.StartedAt = startedAt
	a.FinishedAt = doneAt
	return a, nil
}

func hashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
