package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/septivank/electricity-billing/internal/app"
	"github.com/septivank/electricity-billing/internal/config"
	"github.com/septivank/electricity-billing/internal/logging"
	"github.com/septivank/electricity-billing/internal/mq"
	"github.com/septivank/electricity-billing/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	if path := config.LoadDotEnv(); path != "" {
		fmt.Printf("Loaded environment from: %s\n", path)
	} else {
		fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
	}

	fxApp := fx.New(
		app.Module,
		fx.Provide(
			ProvideMQConnection,
			ProvidePublisher,
			func(p *mq.Publisher) service.EventPublisher { return p },
			ProvideProcessorService,
			ProvideHTTPHandler,
		),
		fx.Invoke(startWorker, startHTTPServer),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tempLogger, _ := logging.NewLogger("electricity-billing", "info")
	tempLogger.Info("starting application...", zap.String("timeout", "30s"))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := fxApp.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			tempLogger.Error("APPLICATION START TIMEOUT: Failed to start within 30 seconds. This usually means a dependency (store, Redis or RabbitMQ) is not accessible. Check the error messages above for specific connection failures.")
		}
		tempLogger.Fatal("failed to start application", zap.Error(err))
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Println("error stopping app:", err)
	}
}
