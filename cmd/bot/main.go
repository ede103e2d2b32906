// Package main - точка входа Telegram-бота уведомлений о посещаемости CARE.
//
// Один процесс обслуживает регистрацию студентов, команду /attendance,
// периодический мониторинг посещаемости и ops HTTP-сервер.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/care-attendance/attendance-bot/config"
	"github.com/care-attendance/attendance-bot/internal/application/monitor"
	"github.com/care-attendance/attendance-bot/internal/application/query"
	"github.com/care-attendance/attendance-bot/internal/application/registration"
	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/external/care"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/external/email"
	tgclient "github.com/care-attendance/attendance-bot/internal/infrastructure/external/telegram"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/metrics"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/persistence"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/persistence/memory"
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
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.ForEnvironment(string(cfg.App.Environment), cfg.App.LogLevel)
	slog.SetDefault(log)
	log.Info("starting CARE attendance bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"storage", cfg.Storage.Driver,
		"otp_mode", cfg.Otp.Mode,
	)

	m := metrics.New()
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	stores, err := persistence.Open(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()
	if stores.Ping != nil {
		health.AddCheck("storage", stores.Ping)
	}

	var (
		otpStore otp.Store = memory.NewOtpStore()
		locker   monitor.Locker
	)
	if cfg.Redis.Enabled {
		cache, err := retry.DoWithData(ctx, persistence.StartupRetrier(log, "redis"), func(ctx context.Context) (*redis.Cache, error) {
			return redis.NewCache(ctx, redisConfig(cfg.Redis))
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()

		otpStore = redis.NewOtpStore(cache, cfg.Otp.Expiry)
		locker = redis.NewLocker(cache, cfg.Redis.LockTTL)
		health.AddCheck("redis", handlers.NewPingCheck(cache))
		log.Info("redis connection established")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ВНЕШНИЕ КЛИЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	tg := tgclient.NewClient(telegramConfig(cfg.Telegram, log))
	careClient := care.NewClient(careConfig(cfg.Care, log))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. РЕГИСТРАЦИЯ И ЗАПРОСЫ
	// ─────────────────────────────────────────────────────────────────────────
	var (
		deliverer   otp.Deliverer = tgclient.NewOtpDeliverer(tg)
		contactMode               = student.ContactPhone
	)
	if cfg.Otp.Mode == config.OtpModeEmail {
		deliverer = email.NewDeliverer(smtpConfig(cfg.SMTP, log), nil)
		contactMode = student.ContactEmail
	}

	otpConfig := otp.DefaultServiceConfig()
	otpConfig.Expiry = cfg.Otp.Expiry
	otpConfig.BcryptCost = cfg.Otp.BcryptCost
	otpConfig.Logger = log
	otpService := otp.NewService(otpStore, deliverer, otpConfig)

	flowConfig := registration.DefaultConfig()
	flowConfig.Format = student.RegistrationFormat{Prefix: cfg.Registration.Prefix, SuffixLength: cfg.Registration.SuffixLength}
	flowConfig.ContactMode = contactMode
	flowConfig.DefaultName = cfg.Registration.DefaultName
	flowConfig.Logger = log
	flowConfig.Recorder = m
	flow := registration.NewFlow(
		memory.NewMap[student.SessionID, registration.Session](),
		stores.Students,
		otpService,
		flowConfig,
	)

	catalog := attendance.DefaultCatalog()
	attendanceQuery := query.NewGetAttendanceHandler(stores.Students, careClient, catalog, cfg.Registration.DefaultName)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. МОНИТОРИНГ
	// ─────────────────────────────────────────────────────────────────────────
	monitorConfig := monitor.DefaultConfig()
	monitorConfig.Catalog = catalog
	monitorConfig.DefaultName = cfg.Registration.DefaultName
	monitorConfig.Locker = locker
	monitorConfig.Recorder = m
	monitorConfig.Logger = log
	mon := monitor.New(stores.Students, stores.Snapshots, careClient, telegram.NewAlertNotifier(tg), monitorConfig)

	monitorJob := jobs.NewAttendanceMonitorJob(mon, log, jobs.AttendanceMonitorConfig{Timeout: cfg.Monitor.CycleTimeout})
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: log})
	if err := sched.Register(monitorJob, scheduler.NewIntervalSchedule(cfg.Monitor.Interval, cfg.Monitor.RunOnStart)); err != nil {
		return fmt.Errorf("failed to register monitor job: %w", err)
	}
	health.AddCheck("scheduler", handlers.NewRunningCheck(sched))
	health.AddCheck("monitor", handlers.NewCycleFreshnessCheck(func() (time.Time, bool) {
		report, ok := monitorJob.LastReport()
		return report.FinishedAt, ok
	}, 3*cfg.Monitor.Interval, nil))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. TELEGRAM-БОТ И HTTP
	// ─────────────────────────────────────────────────────────────────────────
	botConfig := telegram.DefaultBotConfig()
	botConfig.DefaultName = cfg.Registration.DefaultName
	botConfig.Metrics.Recorder = m
	botConfig.Logger = log
	bot, err := telegram.NewBot(tg, telegram.BotDependencies{
		Registration: flow,
		Attendance:   attendanceQuery,
	}, botConfig)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Addr = cfg.HTTP.Addr
	httpConfig.ShutdownTimeout = cfg.App.ShutdownTimeout
	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Health:   health,
		Jobs:     sched,
		Gatherer: m.Registry(),
		Logger:   log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	log.Info("bot is running", "http_address", cfg.HTTP.Addr, "monitor_interval", cfg.Monitor.Interval.String())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	return rc
}

func telegramConfig(c config.TelegramConfig, log *slog.Logger) tgclient.ClientConfig {
	tc := tgclient.DefaultClientConfig(c.Token)
	if c.BaseURL != "" {
		tc.BaseURL = c.BaseURL
	}
	tc.PollTimeout = c.PollTimeout
	tc.Timeout = c.PollTimeout + 15*time.Second
	tc.Logger = log
	return tc
}

func careConfig(c config.CareConfig, log *slog.Logger) care.ClientConfig {
	cc := care.DefaultClientConfig(c.APIURL)
	cc.Timeout = c.Timeout
	cc.RateLimiterConfig.RequestsPerSecond = c.RateLimit
	if c.Burst > 0 {
		cc.RateLimiterConfig.BurstSize = c.Burst
	}
	cc.Logger = log
	return cc
}

func smtpConfig(c config.SMTPConfig, log *slog.Logger) email.Config {
	ec := email.DefaultConfig()
	ec.Host = c.Host
	if c.Port > 0 {
		ec.Port = c.Port
	}
	ec.Username = c.Username
	ec.Password = c.Password
	ec.From = c.From
	ec.Logger = log
	return ec
}
