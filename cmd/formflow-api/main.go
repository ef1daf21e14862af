package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/formflow/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "formflow-api",
		Usage:                 "Create, inspect and resume form filling tasks",
		EnableShellCompletion: true,
		Flags:                 append(cmd.APIFlags(defaultPort), cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			runtime, err := cmd.NewRuntime(ctx, command, "formflow-api")
			if err != nil {
				return err
			}
			defer runtime.Close(context.Background())

			cmd.WarnInProcessBus(ctx, runtime.Logger, command.String("event-bus"), "formflow-api")

			logger := runtime.Logger
			logger.InfoContext(ctx, "Initializing Formflow API")

			api := NewAPI(logger, runtime.Tasks, runtime.Registry)

			return api.Start(ctx, command.Int("port"))
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
