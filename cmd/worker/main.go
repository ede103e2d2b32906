// Package main - отдельный процесс мониторинга посещаемости.
//
// Worker выполняет только циклы AttendanceMonitor без опроса Telegram.
// С флагом -once задача планировщика запускается один раз через RunNow
// (удобно для cron), иначе циклы идут по расписанию до сигнала завершения. При нескольких экземплярах включите
// Redis: блокировка не даёт двум циклам пересечься.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/care-attendance/attendance-bot/config"
	"github.com/care-attendance/attendance-bot/internal/application/monitor"
	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/external/care"
	tgclient "github.com/care-attendance/attendance-bot/internal/infrastructure/external/telegram"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/metrics"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/persistence"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/persistence/redis"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/scheduler"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/care-attendance/attendance-bot/internal/interface/http"
	"github.com/care-attendance/attendance-bot/internal/interface/http/handlers"
	"github.com/care-attendance/attendance-bot/internal/interface/telegram"
	"github.com/care-attendance/attendance-bot/pkg/logger"
	"github.com/care-attendance/attendance-bot/pkg/retry"
)

func main() {
	once := flag.Bool("once", false, "run a single monitor cycle and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Component(logger.ForEnvironment(string(cfg.App.Environment), cfg.App.LogLevel), "worker")

	stores, err := persistence.Open(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	m := metrics.New()

	monitorConfig := monitor.DefaultConfig()
	monitorConfig.Catalog = attendance.DefaultCatalog()
	monitorConfig.DefaultName = cfg.Registration.DefaultName
	monitorConfig.Recorder = m
	monitorConfig.Logger = log

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if stores.Ping != nil {
		health.AddCheck("storage", stores.Ping)
	}
	if cfg.Redis.Enabled {
		rc := redis.DefaultConfig()
		rc.Host, rc.Port, rc.Password, rc.DB = cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB
		cache, err := retry.DoWithData(ctx, persistence.StartupRetrier(log, "redis"), func(ctx context.Context) (*redis.Cache, error) {
			return redis.NewCache(ctx, rc)
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()
		monitorConfig.Locker = redis.NewLocker(cache, cfg.Redis.LockTTL)
		health.AddCheck("redis", handlers.NewPingCheck(cache))
	}

	tgConfig := tgclient.DefaultClientConfig(cfg.Telegram.Token)
	if cfg.Telegram.BaseURL != "" {
		tgConfig.BaseURL = cfg.Telegram.BaseURL
	}
	tgConfig.Logger = log

	careConfig := care.DefaultClientConfig(cfg.Care.APIURL)
	careConfig.Timeout = cfg.Care.Timeout
	careConfig.RateLimiterConfig.RequestsPerSecond = cfg.Care.RateLimit
	if cfg.Care.Burst > 0 {
		careConfig.RateLimiterConfig.BurstSize = cfg.Care.Burst
	}
	careConfig.Logger = log

	mon := monitor.New(
		stores.Students,
		stores.Snapshots,
		care.NewClient(careConfig),
		telegram.NewAlertNotifier(tgclient.NewClient(tgConfig)),
		monitorConfig,
	)

	job := jobs.NewAttendanceMonitorJob(mon, log, jobs.AttendanceMonitorConfig{Timeout: cfg.Monitor.CycleTimeout})
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: log})
	if err := sched.Register(job, scheduler.NewIntervalSchedule(cfg.Monitor.Interval, cfg.Monitor.RunOnStart)); err != nil {
		return fmt.Errorf("failed to register monitor job: %w", err)
	}

	if once {
		_, err := sched.RunNow(ctx, jobs.JobNameAttendanceMonitor)
		if report, ok := job.LastReport(); ok {
			log.Info("single cycle finished",
				"cycle_id", report.CycleID,
				"students", report.Students,
				"alerts", report.Alerts,
				"fetch_failed", report.FetchFailed,
				"locked", report.Locked,
			)
		}
		return err
	}

	health.AddCheck("scheduler", handlers.NewRunningCheck(sched))
	health.AddCheck("monitor", handlers.NewCycleFreshnessCheck(func() (time.Time, bool) {
		report, ok := job.LastReport()
		return report.FinishedAt, ok
	}, 3*cfg.Monitor.Interval, nil))

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Addr = cfg.HTTP.Addr
	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Health:   health,
		Jobs:     sched,
		Gatherer: m.Registry(),
		Logger:   log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	log.Info("worker is running", "monitor_interval", cfg.Monitor.Interval.String())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
