// Command formflow runs the API, a worker and the recovery sweeper in one process. With
// the default gochannel event bus it needs no broker.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dukex/formflow/pkg/cmd"
	"github.com/dukex/formflow/pkg/recovery"
	"github.com/dukex/formflow/pkg/web"
	"github.com/dukex/formflow/pkg/worker"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9090

func main() {
	flags := append(cmd.APIFlags(defaultPort), cmd.WorkerFlags()...)

	command := &cli.Command{
		Name:                  "formflow",
		Usage:                 "Fill forms from documents, asking for what is missing",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Run the API and a worker in a single process",
				Flags:   append(flags, cmd.CommonFlags()...),
				Action:  serve,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		stop()
		panic(err)
	}
}

func serve(ctx context.Context, command *cli.Command) error {
	runtime, err := cmd.NewRuntime(ctx, command, "formflow")
	if err != nil {
		return err
	}
	defer runtime.Close(context.Background())

	logger := runtime.Logger

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "standalone"
	}

	sweeper, err := recovery.NewSweeper(command.String("sweep-schedule"), command.Duration("stale-after"), runtime.Tasks, logger)
	if err != nil {
		return err
	}

	err = sweeper.Start(ctx)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	handlers := web.NewAPIHandlers(runtime.Tasks, runtime.Registry, validator.New(validator.WithRequiredStructEnabled()), logger)

	app := fiber.New()
	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	handlers.Register(app)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- worker.NewManager(workerID, runtime.Tasks, runtime.EventBus, logger).Start(ctx)
	}()

	go func() {
		logger.InfoContext(ctx, "Formflow listening", "port", command.Int("port"), "worker_id", workerID)
		errs <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	select {
	case <-ctx.Done():
	case err = <-errs:
		logger.ErrorContext(ctx, "Component stopped", "error", err)
	}

	cancel()

	return errors.Join(err, app.Shutdown())
}
