package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/warden/pkg/channels/kafka"
	"github.com/dukex/warden/pkg/cmd"
	"github.com/dukex/warden/pkg/config"
	"github.com/dukex/warden/pkg/eventbus"
	"github.com/dukex/warden/pkg/executor"
	"github.com/dukex/warden/pkg/log"
	"github.com/dukex/warden/pkg/otelhelper"
	"github.com/dukex/warden/pkg/persistence"
	"github.com/dukex/warden/pkg/runner"
	"github.com/dukex/warden/pkg/services"
	"github.com/dukex/warden/pkg/store"
	"github.com/dukex/warden/pkg/workspace"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the Warden API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://, redis://, postgres://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "workspace-file",
				Usage:    "YAML file seeding the managed workspaces",
				Required: true,
				Sources:  cli.EnvVars("WORKSPACE_FILE"),
			},
			&cli.StringFlag{
				Name:     "agent-id",
				Usage:    "Member id of the service identity that performs changes",
				Required: true,
				Sources:  cli.EnvVars("AGENT_ID"),
			},
			&cli.StringFlag{
				Name:    "policy-file",
				Usage:   "Optional YAML file with per-workspace policies applied at startup",
				Sources: cli.EnvVars("POLICY_FILE"),
			},
			&cli.DurationFlag{
				Name:    "plan-ttl",
				Usage:   "How long a plan waits for approval",
				Value:   store.DefaultPlanTTL,
				Sources: cli.EnvVars("PLAN_TTL"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron spec for dropping expired pending plans",
				Value:   "@every 1m",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("warden")

			logger.InfoContext(ctx, "Initializing Warden API")

			client, err := workspace.LoadMemory(command.String("workspace-file"))
			if err != nil {
				return err
			}

			kv, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to open persistence: %w", err)
			}

			defer func() {
				if err := kv.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, err := cmd.NewEventBus(command.String("event-bus"),
				kafka.ParseBrokers(command.String("kafka-brokers")), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := subscribeActivityLog(ctx, bus, logger); err != nil {
				return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
			}

			tracer := otelhelper.NoopTracer()

			if command.Bool("otel") {
				var shutdown func(context.Context) error

				tracer, shutdown, err = otelhelper.NewTracer(ctx, "warden")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			engine := newEngine(client, kv, bus, tracer, logger, command.String("agent-id"), command.Duration("plan-ttl"))

			if path := command.String("policy-file"); path != "" {
				if err := applyPolicies(ctx, engine, path, logger); err != nil {
					return err
				}
			}

			sweeper, err := startSweeper(ctx, engine, command.String("sweep-schedule"), logger)
			if err != nil {
				return err
			}
			defer sweeper.Stop()

			return NewAPI(logger, engine).Start(ctx, command.Int("port"))
		},
	}
}

func newEngine(
	client workspace.Client,
	kv persistence.KV,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	agentID string,
	planTTL time.Duration,
) *services.Engine {
	return services.NewEngine(services.Dependencies{
		Client:    client,
		Storage:   kv,
		Runner:    runner.New(executor.New(client, logger), tracer, logger),
		Pending:   store.NewPendingPlans(logger, store.WithTTL(planTTL), store.WithCap(store.DefaultPendingCap)),
		Audit:     store.NewAuditLog(kv, logger, store.DefaultAuditCap),
		Workflows: store.NewWorkflows(kv, logger, store.DefaultWorkflowCap),
		Policies:  store.NewPolicies(kv),
		Publisher: publisher,
		AgentID:   agentID,
	}, logger)
}

// applyPolicies stores every policy of the file at path, replacing what was saved
// through the API.
func applyPolicies(ctx context.Context, engine *services.Engine, path string, logger *slog.Logger) error {
	file, err := config.LoadPolicyFile(path)
	if err != nil {
		return err
	}

	for _, workspaceID := range file.WorkspaceIDs() {
		if _, err := engine.SeedPolicy(ctx, workspaceID, file.Workspaces[workspaceID]); err != nil {
			return fmt.Errorf("failed to apply policy for %s: %w", workspaceID, err)
		}

		logger.InfoContext(ctx, "Applied policy from file", "workspace_id", workspaceID, "path", path)
	}

	return nil
}

func startSweeper(ctx context.Context, engine *services.Engine, schedule string, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		removed, err := engine.SweepPending(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to sweep pending plans", "error", err)

			return
		}

		if removed > 0 {
			logger.InfoContext(ctx, "Swept expired pending plans", "removed", removed)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	c.Start()

	return c, nil
}
