// Package monitor - мониторинг посещаемости.
//
// Один цикл загружает всех зарегистрированных студентов и прошлые снимки,
// получает свежие данные CARE, решает, кому отправить предупреждение, и
// один раз сохраняет новые снимки. Циклы запускает планировщик.
package monitor

//go:generate mockgen -destination=mocks/mock_deps.go -package=mocks github.com/care-attendance/attendance-bot/internal/application/monitor Students,Notifier,Locker
//go:generate mockgen -destination=mocks/mock_attendance.go -package=mocks github.com/care-attendance/attendance-bot/internal/domain/attendance Client,SnapshotRepository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Students - источник списка студентов. Реализуется student.Repository.
type Students interface {
	ListAll(ctx context.Context) ([]*student.Record, error)
}

// Notifier доставляет одно предупреждение в сессию.
type Notifier interface {
	NotifyAlert(ctx context.Context, sessionID student.SessionID, alert attendance.Alert) error
}

// Locker исключает пересечение циклов разных процессов. Реализуется redis.Locker.
type Locker interface {
	TryLock(ctx context.Context, resource string) (release func(context.Context) error, ok bool, err error)
}

// Recorder получает итоги цикла для метрик.
type Recorder interface {
	CycleFinished(outcome string, took time.Duration)
	StudentChecked()
	FetchFailed()
	AlertSent(severity string)
	AlertDeliveryFailed()
	SnapshotWriteFailed()
}

// Итоги цикла для Recorder.
const (
	OutcomeOK            = "ok"
	OutcomePersistFailed = "persist_failed"
	OutcomeLocked        = "skipped_locked"
	OutcomeFailed        = "failed"
)

// LockResource - имя блокировки, общее для всех процессов с мониторингом.
const LockResource = "attendance_monitor"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config - настройки Monitor.
type Config struct {
	// Catalog сопоставляет (факультет, курс) с кодами предметов.
	Catalog attendance.SubjectCatalog

	// DefaultName подставляется, если у записи нет имени.
	DefaultName string

	// Locker необязателен. Без него циклы идут без межпроцессной блокировки.
	Locker Locker

	// Recorder необязателен.
	Recorder Recorder

	Clock  timeutil.Clock
	Logger *slog.Logger
}

// DefaultConfig возвращает встроенный каталог предметов.
func DefaultConfig() Config {
	return Config{
		Catalog:     attendance.DefaultCatalog(),
		DefaultName: "Student",
	}
}

// CycleReport - итоги одного цикла.
type CycleReport struct {
	CycleID        string
	StartedAt      time.Time
	FinishedAt     time.Time
	Students       int
	Checked        int
	Skipped        int
	FetchFailed    int
	Alerts         int
	DeliveryFailed int
	Panicked       int
	Persisted      bool
	Locked         bool
}

// Duration возвращает длительность цикла.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// MONITOR
// ══════════════════════════════════════════════════════════════════════════════

// Monitor выполняет циклы мониторинга. Циклы не реентерабельны: их
// запускает планировщик, который не пересекает задачу саму с собой.
type Monitor struct {
	students  Students
	snapshots attendance.SnapshotRepository
	client    attendance.Client
	notifier  Notifier
	config    Config
	clock     timeutil.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New создаёт Monitor.
func New(students Students, snapshots attendance.SnapshotRepository, client attendance.Client, notifier Notifier, config Config) *Monitor {
	defaults := DefaultConfig()
	if config.Catalog == nil {
		config.Catalog = defaults.Catalog
	}
	if config.DefaultName == "" {
		config.DefaultName = defaults.DefaultName
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Monitor{
		students:  students,
		snapshots: snapshots,
		client:    client,
		notifier:  notifier,
		config:    config,
		clock:     timeutil.OrSystem(config.Clock),
		logger:    config.Logger,
		tracer:    otel.Tracer("github.com/care-attendance/attendance-bot/internal/application/monitor"),
	}
}

// RunOnce выполняет один цикл. Ошибка записи снимков возвращается как
// ErrStorage вместе с полным отчётом: предупреждения цикла уже отправлены.
func (m *Monitor) RunOnce(ctx context.Context) (report CycleReport, err error) {
	report = CycleReport{CycleID: uuid.NewString(), StartedAt: m.clock.Now()}
	logger := m.logger.With("cycle_id", report.CycleID)

	ctx, span := m.tracer.Start(ctx, "monitor.cycle", trace.WithAttributes(
		attribute.String("cycle.id", report.CycleID),
	))
	outcome := OutcomeOK
	defer func() {
		report.FinishedAt = m.clock.Now()
		span.SetAttributes(
			attribute.Int("cycle.students", report.Students),
			attribute.Int("cycle.alerts", report.Alerts),
			attribute.String("cycle.outcome", outcome),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		m.record(func(r Recorder) { r.CycleFinished(outcome, report.Duration()) })
	}()

	if m.config.Locker != nil {
		release, ok, lockErr := m.config.Locker.TryLock(ctx, LockResource)
		if lockErr != nil {
			outcome = OutcomeFailed
			return report, fmt.Errorf("monitor lock: %w", lockErr)
		}
		if !ok {
			outcome = OutcomeLocked
			report.Locked = true
			logger.Info("monitor cycle skipped, another process holds the lock")
			return report, nil
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				logger.Warn("failed to release monitor lock", "error", relErr)
			}
		}()
	}

	records, err := m.students.ListAll(ctx)
	if err != nil {
		outcome = OutcomeFailed
		return report, fmt.Errorf("list students: %w", err)
	}
	prev, err := m.snapshots.LoadAll(ctx)
	if err != nil {
		outcome = OutcomeFailed
		return report, fmt.Errorf("load snapshots: %w", err)
	}

	report.Students = len(records)
	next := make(attendance.Snapshots, len(records))
	for _, rec := range records {
		if snap, ok := prev[rec.RegistrationNumber]; ok {
			next[rec.RegistrationNumber] = snap
		}
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			outcome = OutcomeFailed
			return report, ctx.Err()
		}
		m.checkStudent(ctx, logger, rec, prev, next, &report)
	}

	if err := m.snapshots.SetAll(ctx, next); err != nil {
		outcome = OutcomePersistFailed
		m.record(func(r Recorder) { r.SnapshotWriteFailed() })
		logger.Error("failed to persist snapshots", "error", err)
		return report, shared.WrapError("attendance", "SetAll", shared.ErrStorage, "snapshot persist failed", err)
	}
	report.Persisted = true

	logger.Info("monitor cycle completed",
		"students", report.Students,
		"checked", report.Checked,
		"skipped", report.Skipped,
		"fetch_failed", report.FetchFailed,
		"alerts", report.Alerts,
		"delivery_failed", report.DeliveryFailed,
	)
	return report, nil
}

// checkStudent обрабатывает одну запись. Паника не выходит за пределы студента.
// Нечисловые значения провайдера отбрасываются до расчётов.
func (m *Monitor) checkStudent(
	ctx context.Context,
	logger *slog.Logger,
	rec *student.Record,
	prev, next attendance.Snapshots,
	report *CycleReport,
) {
	if rec == nil || rec.RegistrationNumber == "" || !rec.SessionID.IsValid() {
		report.Skipped++
		return
	}

	defer func() {
		if r := recover(); r != nil {
			report.Panicked++
			logger.Error("panic while checking student",
				"registration_number", rec.RegistrationNumber,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	subjects := m.config.Catalog.Subjects(rec.Department, rec.Year)
	if len(subjects) == 0 {
		report.Skipped++
		return
	}

	reading, err := m.client.Fetch(ctx, rec.RegistrationNumber)
	reading = reading.Finite()
	if err != nil || len(reading) == 0 {
		report.FetchFailed++
		m.record(func(r Recorder) { r.FetchFailed() })
		logger.Warn("attendance fetch failed",
			"registration_number", rec.RegistrationNumber,
			"error", err,
		)
		return
	}
	report.Checked++
	m.record(func(r Recorder) { r.StudentChecked() })

	ev := attendance.Evaluate(prev[rec.RegistrationNumber], reading, subjects)

	snap := attendance.Snapshot{Subjects: reading.Clone(), ObservedAt: m.clock.Now()}
	if ev.HasOverall {
		overall := ev.Overall
		snap.Overall = &overall
	}
	next[rec.RegistrationNumber] = snap

	if !ev.AlertDue() {
		return
	}

	alert := attendance.Alert{DisplayName: rec.DisplayNameOr(m.config.DefaultName), Evaluation: ev}
	if err := m.notifier.NotifyAlert(ctx, rec.SessionID, alert); err != nil {
		report.DeliveryFailed++
		m.record(func(r Recorder) { r.AlertDeliveryFailed() })
		logger.Warn("alert delivery failed",
			"session_id", rec.SessionID,
			"registration_number", rec.RegistrationNumber,
			"error", shared.WrapError("attendance", "NotifyAlert", shared.ErrDelivery, "send failed", err),
		)
		return
	}

	report.Alerts++
	m.record(func(r Recorder) { r.AlertSent(string(ev.Severity)) })
	logger.Info("attendance alert sent",
		"session_id", rec.SessionID,
		"registration_number", rec.RegistrationNumber,
		"severity", ev.Severity,
		"overall", ev.Overall,
		"drops", len(ev.Drops),
	)
}

func (m *Monitor) record(fn func(Recorder)) {
	if m.config.Recorder != nil {
		fn(m.config.Recorder)
	}
}
