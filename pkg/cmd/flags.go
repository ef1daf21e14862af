package cmd

import (
	"time"

	"github.com/dukex/formflow/pkg/extraction"
	"github.com/dukex/formflow/pkg/workflow"
	"github.com/urfave/cli/v3"
)

// CommonFlags are shared by every binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Task store URL (file path or file://, redis://, postgres://)",
			Value:   "./data",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka). gochannel only works inside one process, such as the standalone formflow binary",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing recipe plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "schema-file",
			Usage:   "YAML field schema replacing the built-in one",
			Sources: cli.EnvVars("SCHEMA_FILE"),
		},
		&cli.StringFlag{
			Name:    "extraction-url",
			Usage:   "Extraction service URL; empty reads the fields embedded in the inputs",
			Sources: cli.EnvVars("EXTRACTION_URL"),
		},
		&cli.DurationFlag{
			Name:    "extraction-timeout",
			Usage:   "Timeout of one call to the extraction service",
			Value:   extraction.DefaultTimeout,
			Sources: cli.EnvVars("EXTRACTION_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-steps",
			Usage:   "Maximum number of steps in one workflow run",
			Value:   workflow.DefaultMaxSteps,
			Sources: cli.EnvVars("MAX_STEPS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json, tint)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// WorkerFlags configure task execution and recovery.
func WorkerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron schedule of the stale task sweep",
			Value:   "@every 1m",
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.DurationFlag{
			Name:    "stale-after",
			Usage:   "Dispatch again tasks left processing for longer than this",
			Value:   5 * time.Minute,
			Sources: cli.EnvVars("STALE_AFTER"),
		},
	}
}

// APIFlags configure the HTTP server.
func APIFlags(defaultPort int) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
	}
}
