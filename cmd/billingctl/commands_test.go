package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/septivank/electricity-billing/internal/billing"
	"github.com/septivank/electricity-billing/internal/config"
	"github.com/septivank/electricity-billing/internal/lock"
	"github.com/septivank/electricity-billing/internal/repository/memory"
	"github.com/septivank/electricity-billing/internal/service"
	"go.uber.org/zap"
)

func newTestLedger() Ledger {
	engine := billing.NewEngine(billing.Rates{Day: 2, Night: 1}, billing.Rates{Day: 999, Night: 999})
	return service.NewLedgerService(memory.New(), engine, lock.NewLocal(), nil, nil, config.PolicyRollover, zap.NewNop())
}

func runCmd(l Ledger, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), l, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_BillingFlow(t *testing.T) {
	l := newTestLedger()

	code, out, errOut := runCmd(l, "create-meter", "-meter", "M1", "-day", "100", "-night", "50")
	if code != 0 {
		t.Fatalf("create-meter exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Meter M1 added successfully.") {
		t.Errorf("unexpected output: %s", out)
	}

	code, out, errOut = runCmd(l, "record-reading", "-meter", "M1", "-day", "150", "-night", "75")
	if code != 0 {
		t.Fatalf("record-reading exit %d: %s", code, errOut)
	}
	for _, want := range []string{"BILL DETAILS", "Day consumption: 50 kWh (tariff: 2 per kWh)", "Night consumption: 25 kWh", "Total amount: 125.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	code, out, _ = runCmd(l, "record-reading", "-meter", "M1", "-day", "30", "-night", "75")
	if code != 0 || !strings.Contains(out, "Day consumption: 879 kWh (tariff: 2 per kWh) [counter reset]") {
		t.Errorf("expected reset bill, got exit %d:\n%s", code, out)
	}

	code, out, _ = runCmd(l, "history", "-meter", "M1")
	if code != 0 || !strings.Contains(out, "Record 3:") || !strings.Contains(out, "Notes: initial registration record") {
		t.Errorf("unexpected history, exit %d:\n%s", code, out)
	}

	code, out, _ = runCmd(l, "list-meters")
	if code != 0 || !strings.Contains(out, "Current day reading: 30 kWh") {
		t.Errorf("unexpected meter list, exit %d:\n%s", code, out)
	}
}

func TestRun_Errors(t *testing.T) {
	l := newTestLedger()
	runCmd(l, "create-meter", "-meter", "M1", "-day", "1", "-night", "1")

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"duplicate", []string{"create-meter", "-meter", "M1", "-day", "1", "-night", "1"}, 1, "meter already exists"},
		{"unknown meter", []string{"record-reading", "-meter", "ghost", "-day", "1", "-night", "1"}, 1, "meter not found"},
		{"bad number", []string{"record-reading", "-meter", "M1", "-day", "abc", "-night", "1"}, 1, "invalid input"},
		{"unknown command", []string{"delete-meter"}, 2, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCmd(l, tt.args...)
			if code != tt.code {
				t.Fatalf("exit=%d want %d (%s)", code, tt.code, errOut)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Fatalf("expected %q in stderr, got %q", tt.want, errOut)
			}
		})
	}
}

func TestRun_EmptyStates(t *testing.T) {
	l := newTestLedger()

	if _, out, _ := runCmd(l, "list-meters"); !strings.Contains(out, "No meters registered.") {
		t.Errorf("unexpected output: %s", out)
	}
	if _, out, _ := runCmd(l, "history", "-meter", "ghost"); !strings.Contains(out, "No history found for meter ghost.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50, "50"},
		{2.16, "2.16"},
		{0.5, "0.5"},
		{0, "0"},
		{-399.5, "-399.5"},
		{2.0000001, "2"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
