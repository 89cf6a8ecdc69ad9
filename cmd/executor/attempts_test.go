package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/fd1az/flashloan-executor/business/execution/domain"
)

type fakeLister struct {
	attempts  []domain.Attempt
	err       error
	gotState  domain.State
	gotLimit  int
	listCalls int
}

func (f *fakeLister) ListByState(ctx context.Context, state domain.State, limit int) ([]domain.Attempt, error) {
	f.listCalls++
	f.gotState = state
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Attempt
	for _, a := range f.attempts {
		if a.State == state {
			out = append(out, a)
		}
	}
	return out, nil
}

func journaled() []domain.Attempt {
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	live := uint64(9)
	return []domain.Attempt{
		{
			ID:            uuid.MustParse("6f1c1f0e-9d7a-4b43-9a43-3c1f5e2d8a10"),
			OpportunityID: "opp-pending",
			Provider:      "Aave",
			Account:       common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
			PlannedNonce:  7,
			LiveNonce:     &live,
			TxHash:        common.HexToHash("0xabc"),
			Broadcasts:    3,
			State:         domain.StateTimedOut,
			ErrorKind:     domain.KindTimedOut,
			Detail:        "no receipt before deadline",
			StartedAt:     finished.Add(-12 * time.Second),
			FinishedAt:    finished,
		},
		{
			ID:            uuid.MustParse("0b6c3c55-2f0b-4a83-8d3d-2b0c1f9b7e21"),
			OpportunityID: "opp-rejected",
			Provider:      "Balancer",
			State:         domain.StateFailed,
			ErrorKind:     domain.KindRPCError,
			FinishedAt:    finished,
		},
	}
}

func TestListAttempts(t *testing.T) {
	tests := []struct {
		name      string
		state     string
		listErr   error
		wantIDs   []string
		wantErr   bool
		wantCalls int
	}{
		{"timed_out", "TimedOut", nil, []string{"opp-pending"}, false, 1},
		{"case_insensitive", "failed", nil, []string{"opp-rejected"}, false, 1},
		{"no_matches", "Reverted", nil, nil, false, 1},
		{"unknown_state", "Pending", nil, nil, true, 0},
		{"non_terminal_state", "Submitted", nil, nil, true, 0},
		{"journal_error", "TimedOut", errors.New("connection refused"), nil, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &fakeLister{attempts: journaled(), err: tt.listErr}

			var out bytes.Buffer
			n, err := listAttempts(context.Background(), lister, tt.state, 25, &out)
			if lister.listCalls != tt.wantCalls {
				t.Errorf("ListByState called %d times, want %d", lister.listCalls, tt.wantCalls)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if out.Len() != 0 {
					t.Errorf("wrote output on error: %q", out.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("listAttempts: %v", err)
			}
			if lister.gotLimit != 25 {
				t.Errorf("limit = %d, want 25", lister.gotLimit)
			}
			if n != len(tt.wantIDs) {
				t.Fatalf("listed %d attempts, want %d", n, len(tt.wantIDs))
			}

			var got []string
			for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
				if line == "" {
					continue
				}
				var al attemptLine
				if err := json.Unmarshal([]byte(line), &al); err != nil {
					t.Fatalf("bad line %q: %v", line, err)
				}
				got = append(got, al.OpportunityID)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("listed %v, want %v", got, tt.wantIDs)
			}
		})
	}
}

func TestListAttempts_LineFields(t *testing.T) {
	lister := &fakeLister{attempts: journaled()}

	var out bytes.Buffer
	if _, err := listAttempts(context.Background(), lister, "TimedOut", 10, &out); err != nil {
		t.Fatalf("listAttempts: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(out.Bytes(), &fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"id":             "6f1c1f0e-9d7a-4b43-9a43-3c1f5e2d8a10",
		"state":          "TimedOut",
		"error":          "TimedOut",
		"tx_hash":        common.HexToHash("0xabc").Hex(),
		"account":        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"planned_nonce":  float64(7),
		"live_nonce":     float64(9),
		"broadcasts":     float64(3),
		"finished_at":    "2024-05-01T12:00:00Z",
		"opportunity_id": "opp-pending",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %v, want %v", k, fields[k], v)
		}
	}
	if _, ok := fields["gas_used"]; ok {
		t.Error("gas_used present without a receipt")
	}
}

func TestListAttempts_NoHashOmitted(t *testing.T) {
	lister := &fakeLister{attempts: journaled()}

	var out bytes.Buffer
	if _, err := listAttempts(context.Background(), lister, "Failed", 10, &out); err != nil {
		t.Fatalf("listAttempts: %v", err)
	}
	if strings.Contains(out.String(), "tx_hash") {
		t.Errorf("zero hash written: %s", out.String())
	}
}
