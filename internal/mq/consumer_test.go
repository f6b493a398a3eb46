package mq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/septivank/electricity-billing/internal/ledger"
)

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        bool
	}{
		{"transient first delivery", errors.New("connection refused"), false, true},
		{"transient redelivery", errors.New("connection refused"), true, false},
		{"invalid input", fmt.Errorf("%w: bad reading", ledger.ErrInvalidInput), false, false},
		{"unknown meter", fmt.Errorf("failed to record reading: %w", ledger.ErrNotFound), false, false},
		{"duplicate meter", ledger.ErrAlreadyExists, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRequeue(tt.err, tt.redelivered); got != tt.want {
				t.Errorf("shouldRequeue() = %v, want %v", got, tt.want)
			}
		})
	}
}
