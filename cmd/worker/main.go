package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/drip-engine/internal/alert"
	"github.com/unclebandit/drip-engine/internal/config"
	"github.com/unclebandit/drip-engine/internal/coordinator"
	"github.com/unclebandit/drip-engine/internal/db"
	"github.com/unclebandit/drip-engine/internal/failures"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/logging"
	"github.com/unclebandit/drip-engine/internal/queue"
	"github.com/unclebandit/drip-engine/internal/repository"
)

// failureTTL bounds how long a shared failure count survives without new
// failures.
const failureTTL = 24 * time.Hour

func main() {
	configPath := flag.String("config", "config.ini", "path to optional ini config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("worker failed")
		stop()
		os.Exit(1)
	}
}

// run wires the worker and blocks until ctx is done. Every resource it opens
// is released before it returns.
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	conn, dialect, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	q, err := openQueue(cfg, log)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	tracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}

	notifier, flush := newNotifier(cfg, log)
	defer flush()

	accountRepo := &repository.AccountRepository{DB: conn, Dialect: dialect}
	campaignRepo := &repository.CampaignRepository{DB: conn, Dialect: dialect}
	contactRepo := &repository.ContactRepository{DB: conn, Dialect: dialect}

	machine := lifecycle.NewMachine(contactRepo, campaignRepo, accountRepo, log)

	replies := &queue.ReplyListener{Queue: q, Replies: machine, Log: log}
	if err := replies.Start(); err != nil {
		return fmt.Errorf("subscribe to replies: %w", err)
	}

	coord := &coordinator.Coordinator{
		Contacts:         contactRepo,
		Accounts:         accountRepo,
		Campaigns:        campaignRepo,
		Lifecycle:        machine,
		Sender:           queue.NewPublisher(q),
		Failures:         tracker,
		Alerts:           notifier,
		Log:              log,
		Interval:         cfg.SweepInterval,
		Deadline:         cfg.SweepDeadline,
		Workers:          cfg.DispatchWorkers,
		FailureThreshold: cfg.FailureThreshold,
	}

	log.WithFields(cfg.Fields()).Info("worker running")
	coord.Run(ctx)
	log.Info("worker stopped")
	return nil
}

// openQueue dials RabbitMQ when AMQP_URL is set. Otherwise it returns an
// in-process queue with a logging gateway consuming outbound messages.
func openQueue(cfg *config.Config, log logrus.FieldLogger) (queue.Queue, error) {
	if cfg.AMQPURL != "" {
		return queue.DialAMQP(cfg.AMQPURL, log)
	}
	q := queue.NewInMemoryQueue(log)
	if err := queue.StartLogGateway(q, log); err != nil {
		q.Close()
		return nil, err
	}
	log.Warn("AMQP_URL not set, using in-memory queue with log gateway")
	return q, nil
}

func newTracker(ctx context.Context, cfg *config.Config) (failures.Tracker, error) {
	if !cfg.Redis.Enabled {
		return failures.NewMemoryTracker(), nil
	}
	client, err := failures.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}
	return failures.NewRedisTracker(client, failureTTL), nil
}

// newNotifier always logs alerts and also reports them to Sentry when a DSN
// is configured. The returned func flushes pending Sentry events.
func newNotifier(cfg *config.Config, log logrus.FieldLogger) (alert.Notifier, func()) {
	notifiers := alert.Multi{alert.LogNotifier{Log: log}}
	flush := func() {}
	if cfg.SentryDSN == "" {
		return notifiers, flush
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
		log.WithError(err).Warn("sentry init failed, alerts go to the log only")
		return notifiers, flush
	}
	return append(notifiers, alert.SentryNotifier{}), func() { sentry.Flush(2 * time.Second) }
}
