// Package main is the entrypoint for the sweeper Lambda function.
//
// The sweeper runs on an EventBridge schedule and processes every scheduled
// message whose due time has passed: delivery into the recipient's chat,
// count advancement, and next-occurrence computation. A job lock in Postgres
// keeps concurrent invocations (or a manual API trigger running at the same
// time) from sweeping the same due set twice.
//
// This file handles dependency wiring (cold start) and delegates the sweep
// logic to internal/sweeper.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"sagechat/internal/chat"
	"sagechat/internal/config"
	"sagechat/internal/db"
	"sagechat/internal/scheduler"
	"sagechat/internal/sweeper"
	"sagechat/internal/types"
)

// --- Metric Publisher Implementation ---

// cloudwatchAPI is the subset of the CloudWatch SDK client used by the sweeper.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// liveMetricPublisher is the production implementation of sweeper.MetricPublisher.
// It publishes sweep outcome metrics to CloudWatch under the configured
// namespace. SweepCompleted doubles as the heartbeat for a dead man's switch
// alarm on the EventBridge schedule.
type liveMetricPublisher struct {
	client    cloudwatchAPI
	namespace string
}

func (p *liveMetricPublisher) PublishSweep(ctx context.Context, result types.SweepResult) error {
	success := 0.0
	if result.Success {
		success = 1.0
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwTypes.MetricDatum{
			{
				MetricName: aws.String("SweepCompleted"),
				Value:      aws.Float64(success),
				Unit:       cwTypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("MessagesProcessed"),
				Value:      aws.Float64(float64(result.Processed)),
				Unit:       cwTypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("MessagesDue"),
				Value:      aws.Float64(float64(result.Total)),
				Unit:       cwTypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("MessageFailures"),
				Value:      aws.Float64(float64(len(result.Errors))),
				Unit:       cwTypes.StandardUnitCount,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish sweep metrics: %w", err)
	}
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("sweeper Lambda initializing (cold start)")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	// Lambda concurrency is the scaling unit here, not pool size.
	poolCfg.MaxConns = 2
	poolCfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var metrics sweeper.MetricPublisher
	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		metrics = &liveMetricPublisher{
			client:    cloudwatch.NewFromConfig(awsCfg),
			namespace: cfg.Metrics.Namespace,
		}
	}

	deliverer := chat.NewDeliverer(db.NewChatRepository(pool), logger)
	sched := scheduler.New(scheduler.Config{
		Store:     db.NewScheduleRepository(pool),
		Deliverer: deliverer,
		Logger:    logger,
	})

	runner := sweeper.NewRunner(sweeper.RunnerConfig{
		Scheduler: sched,
		Lock:      db.NewJobLockRepository(pool),
		Metrics:   metrics,
		WorkerID:  "sweeper-" + uuid.NewString()[:8],
		LockTTL:   cfg.Sweep.LockTTL,
		Logger:    logger,
	})

	logger.Info("sweeper Lambda initialized",
		"metric_namespace", cfg.Metrics.Namespace,
		"metrics_enabled", cfg.Metrics.Enabled,
		"lock_ttl", cfg.Sweep.LockTTL.String(),
	)

	// Local mode: read the JSON event from stdin instead of starting the
	// Lambda runtime. An empty stdin runs a default sweep.
	// Usage: echo '{"force":true}' | go run cmd/sweeper/main.go
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		report, err := runner.Handler(ctx, json.RawMessage(payload))
		pool.Close()
		if err != nil {
			logger.Error("sweep execution failed", "error", err)
			os.Exit(1)
		}
		out, _ := json.Marshal(report)
		fmt.Println(string(out))
		return
	}

	lambda.Start(runner.Handler)
}
