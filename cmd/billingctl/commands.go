package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/internal/validator"
	"github.com/septivank/electricity-billing/tools/timeparser"
	"github.com/shopspring/decimal"
)

const rule = "----------------------------------------"

// Ledger is the part of the service the commands drive
type Ledger interface {
	RegisterMeter(ctx context.Context, meterID string, dayReading, nightReading float64) (*ledger.Meter, error)
	RecordReading(ctx context.Context, meterID string, dayReading, nightReading float64) (*ledger.BillingRecord, error)
	GetHistory(ctx context.Context, meterID string) ([]ledger.BillingRecord, error)
	ListMeters(ctx context.Context) ([]ledger.Meter, error)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: billingctl <command> [flags]

commands:
  create-meter   -meter ID -day N -night N   register a meter with its first readings
  record-reading -meter ID -day N -night N   bill new cumulative readings
  history        -meter ID                   print a meter's billing history
  list-meters                                print every meter`)
}

// run executes one subcommand and returns the process exit code
func run(ctx context.Context, l Ledger, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "create-meter":
		err = createMeter(ctx, l, args[1:], stdout)
	case "record-reading":
		err = recordReading(ctx, l, args[1:], stdout)
	case "history":
		err = history(ctx, l, args[1:], stdout)
	case "list-meters":
		err = listMeters(ctx, l, stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

type readingFlags struct {
	fs      *flag.FlagSet
	meterID *string
	day     *string
	night   *string
}

func newReadingFlags(name string) *readingFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &readingFlags{
		fs:      fs,
		meterID: fs.String("meter", "", "meter id"),
		day:     fs.String("day", "", "cumulative day reading"),
		night:   fs.String("night", "", "cumulative night reading"),
	}
}

func (f *readingFlags) parse(args []string) (string, float64, float64, error) {
	if err := f.fs.Parse(args); err != nil {
		return "", 0, 0, err
	}
	day, err := validator.ParseReading("day", *f.day)
	if err != nil {
		return "", 0, 0, err
	}
	night, err := validator.ParseReading("night", *f.night)
	if err != nil {
		return "", 0, 0, err
	}
	return *f.meterID, day, night, nil
}

func createMeter(ctx context.Context, l Ledger, args []string, w io.Writer) error {
	f := newReadingFlags("create-meter")
	f.fs.SetOutput(w)
	meterID, day, night, err := f.parse(args)
	if err != nil {
		return err
	}

	meter, err := l.RegisterMeter(ctx, meterID, day, night)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Meter %s added successfully.\n", meter.MeterID)
	return nil
}

func recordReading(ctx context.Context, l Ledger, args []string, w io.Writer) error {
	f := newReadingFlags("record-reading")
	f.fs.SetOutput(w)
	meterID, day, night, err := f.parse(args)
	if err != nil {
		return err
	}

	rec, err := l.RecordReading(ctx, meterID, day, night)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "             BILL DETAILS")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Meter ID: %s\n", rec.MeterID)
	fmt.Fprintf(w, "Date: %s\n", timeparser.FormatDisplay(rec.Date))
	fmt.Fprintf(w, "Day consumption: %s kWh (tariff: %s per kWh)%s\n",
		formatNumber(rec.DayConsumption), formatNumber(rec.DayTariff), resetMark(rec.DayResetDetected))
	fmt.Fprintf(w, "Night consumption: %s kWh (tariff: %s per kWh)%s\n",
		formatNumber(rec.NightConsumption), formatNumber(rec.NightTariff), resetMark(rec.NightResetDetected))
	fmt.Fprintf(w, "Total amount: %.2f\n", rec.TotalAmount)
	if rec.Notes != "" {
		fmt.Fprintf(w, "Notes: %s\n", rec.Notes)
	}
	fmt.Fprintln(w, rule)
	return nil
}

func history(ctx context.Context, l Ledger, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(w)
	meterID := fs.String("meter", "", "meter id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	records, err := l.GetHistory(ctx, *meterID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(w, "No history found for meter %s.\n", *meterID)
		return nil
	}

	fmt.Fprintf(w, "----- HISTORY FOR METER %s -----\n", *meterID)
	for i := range records {
		rec := &records[i]
		fmt.Fprintf(w, "\nRecord %d:\n", i+1)
		fmt.Fprintf(w, "Date: %s\n", timeparser.FormatDisplay(rec.Date))
		fmt.Fprintf(w, "Day reading: %s kWh\n", formatNumber(rec.CurrentDayReading))
		fmt.Fprintf(w, "Night reading: %s kWh\n", formatNumber(rec.CurrentNightReading))
		fmt.Fprintf(w, "Day consumption: %s kWh%s\n", formatNumber(rec.DayConsumption), resetMark(rec.DayResetDetected))
		fmt.Fprintf(w, "Night consumption: %s kWh%s\n", formatNumber(rec.NightConsumption), resetMark(rec.NightResetDetected))
		fmt.Fprintf(w, "Amount: %.2f\n", rec.TotalAmount)
		if rec.Notes != "" {
			fmt.Fprintf(w, "Notes: %s\n", rec.Notes)
		}
		fmt.Fprintln(w, rule)
	}
	return nil
}

func listMeters(ctx context.Context, l Ledger, w io.Writer) error {
	meters, err := l.ListMeters(ctx)
	if err != nil {
		return err
	}
	if len(meters) == 0 {
		fmt.Fprintln(w, "No meters registered.")
		return nil
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "           ALL METERS")
	fmt.Fprintln(w, rule)
	for _, m := range meters {
		fmt.Fprintf(w, "\nMeter ID: %s\n", m.MeterID)
		fmt.Fprintf(w, "Current day reading: %s kWh\n", formatNumber(m.DayReading))
		fmt.Fprintf(w, "Current night reading: %s kWh\n", formatNumber(m.NightReading))
		fmt.Fprintf(w, "Last updated: %s\n", timeparser.FormatDisplay(m.Date))
		fmt.Fprintln(w, rule)
	}
	return nil
}

// describe turns ledger errors into the messages shown to operators
func describe(err error) string {
	switch {
	case errors.Is(err, ledger.ErrAlreadyExists):
		return "meter already exists: " + err.Error()
	case errors.Is(err, ledger.ErrNotFound):
		return "meter not found: " + err.Error()
	case errors.Is(err, ledger.ErrInvalidInput):
		return "invalid input: " + err.Error()
	default:
		return err.Error()
	}
}

func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).Round(3).String()
}

func resetMark(reset bool) string {
	if reset {
		return " [counter reset]"
	}
	return ""
}
