package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/business/execution/infra/postgres"
	"github.com/fd1az/flashloan-executor/internal/config"
)

type attemptLister interface {
	ListByState(ctx context.Context, state domain.State, limit int) ([]domain.Attempt, error)
}

// attemptLine is the JSON form of one journaled attempt.
type attemptLine struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunity_id"`
	Provider      string    `json:"provider"`
	Account       string    `json:"account"`
	PlannedNonce  uint64    `json:"planned_nonce"`
	LiveNonce     *uint64   `json:"live_nonce,omitempty"`
	TxHash        string    `json:"tx_hash,omitempty"`
	Broadcasts    int       `json:"broadcasts"`
	State         string    `json:"state"`
	Error         string    `json:"error,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	GasUsed       *uint64   `json:"gas_used,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

func newAttemptLine(a domain.Attempt) attemptLine {
	line := attemptLine{
		ID:            a.ID.String(),
		OpportunityID: a.OpportunityID,
		Provider:      a.Provider,
		Account:       a.Account.Hex(),
		PlannedNonce:  a.PlannedNonce,
		LiveNonce:     a.LiveNonce,
		Broadcasts:    a.Broadcasts,
		State:         a.State.String(),
		Error:         string(a.ErrorKind),
		Detail:        a.Detail,
		GasUsed:       a.GasUsed,
		StartedAt:     a.StartedAt,
		FinishedAt:    a.FinishedAt,
	}
	if a.TxHash != (common.Hash{}) {
		line.TxHash = a.TxHash.Hex()
	}
	return line
}

// listAttempts writes the journaled attempts in state to w, one JSON line each.
func listAttempts(ctx context.Context, l attemptLister, state string, limit int, w io.Writer) (int, error) {
	s, err := domain.ParseState(state)
	if err != nil {
		return 0, err
	}

	attempts, err := l.ListByState(ctx, s, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	enc := json.NewEncoder(w)
	for _, a := range attempts {
		if err := enc.Encode(newAttemptLine(a)); err != nil {
			return 0, fmt.Errorf("failed to write attempt: %w", err)
		}
	}
	return len(attempts), nil
}

// runList prints journaled attempts without starting the engine, for
// reconciling TimedOut attempts whose transactions may still be mined.
func runList(ctx context.Context, configPath, state string, limit int, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Postgres.Enabled {
		return fmt.Errorf("listing attempts requires the postgres journal to be enabled")
	}

	client, err := postgres.New(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = listAttempts(ctx, postgres.NewJournal(client.Pool()), state, limit, w)
	return err
}
