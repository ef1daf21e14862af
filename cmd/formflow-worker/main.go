package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/formflow/pkg/cmd"
	"github.com/dukex/formflow/pkg/recovery"
	"github.com/dukex/formflow/pkg/worker"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "formflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute dispatched tasks",
		Flags:                 append(cmd.WorkerFlags(), cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			runtime, err := cmd.NewRuntime(ctx, command, "formflow-worker")
			if err != nil {
				return err
			}
			defer runtime.Close(context.Background())

			cmd.WarnInProcessBus(ctx, runtime.Logger, command.String("event-bus"), "formflow-worker")

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := runtime.Logger.With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Formflow Worker")

			sweeper, err := recovery.NewSweeper(command.String("sweep-schedule"), command.Duration("stale-after"), runtime.Tasks, logger)
			if err != nil {
				return err
			}

			err = sweeper.Start(ctx)
			if err != nil {
				return err
			}
			defer sweeper.Stop()

			return worker.NewManager(workerID, runtime.Tasks, runtime.EventBus, logger).Start(ctx)
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
