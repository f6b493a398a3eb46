package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/internal/repository/memory"
	"github.com/septivank/electricity-billing/internal/repository/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, memory.New(), "mem")
}

func TestFailNextCommit(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	commitErr := errors.New("disk full")
	store.FailNextCommit(commitErr)

	err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertMeter(ctx, &ledger.Meter{MeterID: "M1"})
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("Expected commit error, got %v", err)
	}

	if _, err := store.FindMeter(ctx, "M1"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected nothing committed, got %v", err)
	}

	err = store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertMeter(ctx, &ledger.Meter{MeterID: "M1"})
	})
	if err != nil {
		t.Errorf("Expected only one failed commit, got %v", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	prev := 1.0

	err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertBillingRecord(ctx, &ledger.BillingRecord{MeterID: "M1", PreviousDayReading: &prev})
	})
	if err != nil {
		t.Fatalf("RunInTx failed: %v", err)
	}

	history, _ := store.QueryHistory(ctx, "M1")
	*history[0].PreviousDayReading = 42

	history, _ = store.QueryHistory(ctx, "M1")
	if *history[0].PreviousDayReading != 1 {
		t.Errorf("Expected stored record to be immutable, got %v", *history[0].PreviousDayReading)
	}
}
