// Command billingctl registers meters, records readings and prints billing
// history against the configured store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/septivank/electricity-billing/internal/app"
	"github.com/septivank/electricity-billing/internal/config"
	"github.com/septivank/electricity-billing/internal/service"
	"go.uber.org/fx"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	config.LoadDotEnv()

	var svc *service.LedgerService
	fxApp := fx.New(
		fx.NopLogger,
		app.Module,
		fx.Provide(func() service.EventPublisher { return service.NopPublisher{} }),
		fx.Populate(&svc),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	code := run(context.Background(), svc, os.Args[1:], os.Stdout, os.Stderr)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "error stopping app:", err)
	}

	os.Exit(code)
}
