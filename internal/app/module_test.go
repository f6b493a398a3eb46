package app_test

import (
	"context"
	"testing"

	"github.com/septivank/electricity-billing/internal/app"
	"github.com/septivank/electricity-billing/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModule_MemoryDriver(t *testing.T) {
	for _, key := range []string{"TARIFF_CONFIG_FILE", "TARIFF_DAY", "TARIFF_NIGHT", "RESET_VALUE_DAY", "RESET_VALUE_NIGHT", "READING_DECREASE_POLICY", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TARIFF_DAY", "2")
	t.Setenv("TARIFF_NIGHT", "1")

	var svc *service.LedgerService
	fxApp := fxtest.New(t,
		app.Module,
		fx.Provide(func() service.EventPublisher { return service.NopPublisher{} }),
		fx.Populate(&svc),
	)
	fxApp.RequireStart()
	defer fxApp.RequireStop()

	ctx := context.Background()
	if _, err := svc.RegisterMeter(ctx, "M1", 100, 50); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}
	rec, err := svc.RecordReading(ctx, "M1", 150, 75)
	if err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}
	if rec.TotalAmount != 125 {
		t.Errorf("Expected total 125 from env tariffs, got %v", rec.TotalAmount)
	}
}
