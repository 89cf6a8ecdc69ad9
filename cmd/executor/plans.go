package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fd1az/flashloan-executor/business/execution/domain"
)

type executor interface {
	Execute(ctx context.Context, plan domain.ExecutionPlan) domain.ExecutionResult
}

type summary struct {
	total     int
	confirmed int
}

// readPlans loads a single plan object or an array of plans from path.
func readPlans(path string) ([]domain.ExecutionPlan, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plans: %w", err)
	}
	return decodePlans(data)
}

func decodePlans(data []byte) ([]domain.ExecutionPlan, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no plans given")
	}

	if data[0] == '[' {
		var plans []domain.ExecutionPlan
		if err := json.Unmarshal(data, &plans); err != nil {
			return nil, fmt.Errorf("failed to decode plans: %w", err)
		}
		if len(plans) == 0 {
			return nil, fmt.Errorf("no plans given")
		}
		return plans, nil
	}

	var plan domain.ExecutionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return []domain.ExecutionPlan{plan}, nil
}

// resultLine is one line of output: the result plus the plan it answers.
type resultLine struct {
	OpportunityID string `json:"opportunity_id"`
	domain.ExecutionResult
}

// executeAll runs plans with at most limit in flight and writes one JSON line
// per result to w as each finishes.
func executeAll(ctx context.Context, e executor, plans []domain.ExecutionPlan, limit int, w io.Writer) summary {
	var (
		mu  sync.Mutex
		sum = summary{total: len(plans)}
		enc = json.NewEncoder(w)
	)

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, plan := range plans {
		g.Go(func() error {
			r := e.Execute(ctx, plan)

			mu.Lock()
			defer mu.Unlock()
			if r.Success {
				sum.confirmed++
			}
			return enc.Encode(resultLine{OpportunityID: plan.OpportunityID, ExecutionResult: r})
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
	}
	return sum
}
