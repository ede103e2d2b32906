// Package registration - диалог регистрации студента.
//
// Шаги: согласие, номер студента, контакт, проверка OTP, факультет и курс.
// Диалог завершается одним upsert записи студента. Вариант /updateinfo
// начинается сразу с факультета для уже зарегистрированного студента.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// SessionStore хранит незавершённые сессии. Реализуется memory.Map.
type SessionStore interface {
	Get(ctx context.Context, id student.SessionID) (Session, bool)
	Put(ctx context.Context, id student.SessionID, s Session)
	Delete(ctx context.Context, id student.SessionID)
}

// OtpService выдаёт и проверяет одноразовые коды. Реализуется otp.Service.
type OtpService interface {
	Issue(ctx context.Context, sessionID student.SessionID, reg student.RegistrationNumber, contact student.Contact) error
	Verify(ctx context.Context, sessionID student.SessionID, input string) (otp.Entry, error)
	Discard(ctx context.Context, sessionID student.SessionID)
	Expiry() time.Duration
}

// Recorder получает итоги диалога для метрик. nil отключает запись.
type Recorder interface {
	RegistrationStarted(kind string)
	RegistrationCompleted(kind string)
	RegistrationAbandoned(reason string)
}

// Виды диалога и причины прерывания для Recorder.
const (
	KindRegister = "register"
	KindUpdate   = "update"

	ReasonDeclined   = "declined"
	ReasonCancelled  = "cancelled"
	ReasonOtpExpired = "otp_expired"
	ReasonDelivery   = "delivery_failed"
	ReasonStorage    = "storage_failed"
)

// ══════════════════════════════════════════════════════════════════════════════
// INPUT / OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

// Input - одно сообщение пользователя или нажатие кнопки.
type Input struct {
	SessionID   student.SessionID
	Text        string
	DisplayName string
}

// Button - inline-кнопка. Data возвращается как Input.Text.
type Button struct {
	Label string
	Data  string
}

// Outbound - одно исходящее сообщение в сессию.
type Outbound struct {
	Text    string
	Buttons []Button
}

func reply(text string) []Outbound {
	return []Outbound{{Text: text}}
}

// ══════════════════════════════════════════════════════════════════════════════
// FLOW
// ══════════════════════════════════════════════════════════════════════════════

// Config - настройки Flow.
type Config struct {
	// Format проверяет номер студента.
	Format student.RegistrationFormat

	// ContactMode выбирает проверку по телефону или email.
	ContactMode student.ContactMode

	// DefaultName подставляется, если транспорт не передал имя.
	DefaultName string

	Clock    timeutil.Clock
	Logger   *slog.Logger
	Recorder Recorder
}

// DefaultConfig возвращает проверку по телефону и формат номера CARE.
func DefaultConfig() Config {
	return Config{
		Format:      student.DefaultRegistrationFormat(),
		ContactMode: student.ContactPhone,
		DefaultName: "Student",
	}
}

// Flow - конечный автомат регистрации. Разные сессии можно обрабатывать
// параллельно, ввод одной сессии ожидается последовательно.
type Flow struct {
	sessions SessionStore
	students student.Repository
	otp      OtpService
	config   Config
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewFlow создаёт Flow.
func NewFlow(sessions SessionStore, students student.Repository, otpService OtpService, config Config) *Flow {
	defaults := DefaultConfig()
	if config.Format.Prefix == "" && config.Format.SuffixLength == 0 {
		config.Format = defaults.Format
	}
	if !config.ContactMode.IsValid() {
		config.ContactMode = defaults.ContactMode
	}
	if config.DefaultName == "" {
		config.DefaultName = defaults.DefaultName
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Flow{
		sessions: sessions,
		students: students,
		otp:      otpService,
		config:   config,
		clock:    timeutil.OrSystem(config.Clock),
		logger:   config.Logger,
	}
}

// Active сообщает, находится ли сессия внутри диалога.
func (f *Flow) Active(ctx context.Context, sessionID student.SessionID) bool {
	_, ok := f.sessions.Get(ctx, sessionID)
	return ok
}

// HandleInput продвигает сессию на один ввод. /start, /updateinfo и /cancel
// распознаются в любом состоянии, остальной текст относится к текущему шагу.
// Ошибка возвращается только при сбое инфраструктуры: всё, что видит
// пользователь, находится в исходящих сообщениях.
func (f *Flow) HandleInput(ctx context.Context, in Input) ([]Outbound, error) {
	if !in.SessionID.IsValid() {
		return nil, shared.ErrInvalidSessionID
	}
	text := strings.TrimSpace(in.Text)

	switch command(text) {
	case "start":
		return f.start(ctx, in)
	case "updateinfo":
		return f.startUpdate(ctx, in)
	case "cancel":
		return f.cancel(ctx, in.SessionID), nil
	}

	sess, ok := f.sessions.Get(ctx, in.SessionID)
	if !ok {
		return reply(msgInvalidInput), nil
	}

	switch step := sess.Step.(type) {
	case AwaitingConsent:
		return f.onConsent(ctx, in.SessionID, sess, text), nil
	case AwaitingIdentifier:
		return f.onIdentifier(ctx, in.SessionID, sess, text), nil
	case AwaitingContact:
		return f.onContact(ctx, in.SessionID, sess, step, text)
	case AwaitingOtp:
		return f.onOtp(ctx, in.SessionID, sess, step, text)
	case AwaitingDepartment:
		return f.onDepartment(ctx, in.SessionID, sess, step, text), nil
	case AwaitingYear:
		return f.onYear(ctx, in.SessionID, sess, step, text)
	default:
		f.sessions.Delete(ctx, in.SessionID)
		return reply(msgInvalidInput), nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY POINTS
// ══════════════════════════════════════════════════════════════════════════════

func (f *Flow) start(ctx context.Context, in Input) ([]Outbound, error) {
	existing, err := f.students.GetBySession(ctx, in.SessionID)
	switch {
	case err == nil:
		f.abandon(ctx, in.SessionID, "")
		return reply(msgAlreadyRegistered(existing.DisplayNameOr(f.config.DefaultName))), nil
	case !shared.IsNotFound(err):
		return reply(msgTryLater), err
	}

	f.otp.Discard(ctx, in.SessionID)
	name := f.displayName(in.DisplayName)
	f.sessions.Put(ctx, in.SessionID, Session{
		Step:        AwaitingConsent{},
		DisplayName: name,
		StartedAt:   f.clock.Now(),
	})
	f.record(func(r Recorder) { r.RegistrationStarted(KindRegister) })

	return []Outbound{{
		Text: msgConsent(name),
		Buttons: []Button{
			{Label: "Agree", Data: CallbackConsentAgree},
			{Label: "Decline", Data: CallbackConsentDecline},
		},
	}}, nil
}

func (f *Flow) startUpdate(ctx context.Context, in Input) ([]Outbound, error) {
	existing, err := f.students.GetBySession(ctx, in.SessionID)
	if err != nil {
		if shared.IsNotFound(err) {
			f.abandon(ctx, in.SessionID, "")
			return reply(msgNotRegistered), nil
		}
		return reply(msgTryLater), err
	}

	f.otp.Discard(ctx, in.SessionID)
	f.sessions.Put(ctx, in.SessionID, Session{
		Step: AwaitingDepartment{
			Registration: existing.RegistrationNumber,
			Contact:      existing.Contact,
			Existing:     existing,
		},
		DisplayName: existing.DisplayNameOr(f.displayName(in.DisplayName)),
		StartedAt:   f.clock.Now(),
	})
	f.record(func(r Recorder) { r.RegistrationStarted(KindUpdate) })

	return reply(msgAskNewDepartment), nil
}

func (f *Flow) cancel(ctx context.Context, sessionID student.SessionID) []Outbound {
	if !f.Active(ctx, sessionID) {
		return reply(msgNothingToCancel)
	}
	f.abandon(ctx, sessionID, ReasonCancelled)
	return reply(msgCancelled)
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (f *Flow) onConsent(ctx context.Context, id student.SessionID, sess Session, text string) []Outbound {
	switch consentAnswer(text) {
	case consentYes:
		sess.Step = AwaitingIdentifier{}
		f.sessions.Put(ctx, id, sess)
		return reply(msgAskRegistration(f.config.Format.Prefix))
	case consentNo:
		f.abandon(ctx, id, ReasonDeclined)
		return reply(msgConsentDeclined)
	default:
		return reply(msgConsentRetry)
	}
}

func (f *Flow) onIdentifier(ctx context.Context, id student.SessionID, sess Session, text string) []Outbound {
	reg, err := f.config.Format.Parse(text)
	if err != nil {
		return reply(msgInvalidRegistration(f.config.Format.Hint()))
	}
	sess.Step = AwaitingContact{Registration: reg}
	f.sessions.Put(ctx, id, sess)

	if f.config.ContactMode == student.ContactEmail {
		return reply(msgAskEmail)
	}
	return reply(msgAskMobile)
}

func (f *Flow) onContact(ctx context.Context, id student.SessionID, sess Session, step AwaitingContact, text string) ([]Outbound, error) {
	contact, err := student.ParseContact(f.config.ContactMode, text)
	if err != nil {
		if f.config.ContactMode == student.ContactEmail {
			return reply(msgInvalidEmail), nil
		}
		return reply(msgInvalidMobile), nil
	}

	if err := f.otp.Issue(ctx, id, step.Registration, contact); err != nil {
		f.abandon(ctx, id, ReasonDelivery)
		f.logger.Warn("otp issue failed", "session_id", id, "error", err)
		if shared.IsDelivery(err) {
			return reply(msgDeliveryFailed), nil
		}
		return reply(msgDeliveryFailed), err
	}

	sess.Step = AwaitingOtp{Registration: step.Registration, Contact: contact}
	f.sessions.Put(ctx, id, sess)

	emailed := f.config.ContactMode == student.ContactEmail
	return reply(msgEnterOtp(contact.String(), emailed, f.otp.Expiry())), nil
}

func (f *Flow) onOtp(ctx context.Context, id student.SessionID, sess Session, step AwaitingOtp, text string) ([]Outbound, error) {
	_, err := f.otp.Verify(ctx, id, text)
	switch {
	case err == nil:
	case shared.IsExpired(err):
		f.abandon(ctx, id, ReasonOtpExpired)
		return reply(msgOtpExpired), nil
	case shared.IsValidation(err):
		if !isNumeric(text) {
			return reply(msgOtpNotNumeric), nil
		}
		return reply(msgOtpWrong), nil
	default:
		f.abandon(ctx, id, ReasonStorage)
		return reply(msgTryLater), err
	}

	sess.Step = AwaitingDepartment{Registration: step.Registration, Contact: step.Contact}
	f.sessions.Put(ctx, id, sess)
	return reply(msgAskDepartment), nil
}

func (f *Flow) onDepartment(ctx context.Context, id student.SessionID, sess Session, step AwaitingDepartment, text string) []Outbound {
	dept, err := student.ParseDepartment(text)
	if err != nil {
		return reply(msgInvalidDept)
	}

	sess.Step = AwaitingYear{
		Registration: step.Registration,
		Contact:      step.Contact,
		Department:   dept,
		Existing:     step.Existing,
	}
	f.sessions.Put(ctx, id, sess)

	if step.Existing != nil {
		return reply(msgAskNewYear)
	}
	return reply(msgAskYear)
}

func (f *Flow) onYear(ctx context.Context, id student.SessionID, sess Session, step AwaitingYear, text string) ([]Outbound, error) {
	year, err := student.ParseYear(text)
	if err != nil {
		return reply(msgInvalidYear), nil
	}

	if step.Existing != nil {
		return f.commitUpdate(ctx, id, step, year)
	}

	record := &student.Record{
		SessionID:          id,
		RegistrationNumber: step.Registration,
		DisplayName:        sess.DisplayName,
		Contact:            step.Contact,
		Department:         step.Department,
		Year:               year,
	}
	if err := f.students.Upsert(ctx, record); err != nil {
		f.abandon(ctx, id, ReasonStorage)
		f.logger.Error("failed to save student", "session_id", id, "registration_number", step.Registration, "error", err)
		return reply(msgSaveFailed), err
	}

	f.finish(ctx, id)
	f.record(func(r Recorder) { r.RegistrationCompleted(KindRegister) })
	f.logger.Info("student registered",
		"session_id", id,
		"registration_number", step.Registration,
		"department", step.Department,
		"year", year,
	)
	return reply(msgRegistered), nil
}

func (f *Flow) commitUpdate(ctx context.Context, id student.SessionID, step AwaitingYear, year student.Year) ([]Outbound, error) {
	current, err := f.students.GetBySession(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			f.abandon(ctx, id, "")
			return reply(msgNotRegistered), nil
		}
		f.abandon(ctx, id, ReasonStorage)
		return reply(msgSaveFailed), err
	}

	current.Department = step.Department
	current.Year = year
	if err := f.students.Upsert(ctx, current); err != nil {
		f.abandon(ctx, id, ReasonStorage)
		f.logger.Error("failed to update student", "session_id", id, "error", err)
		return reply(msgSaveFailed), err
	}

	f.finish(ctx, id)
	f.record(func(r Recorder) { r.RegistrationCompleted(KindUpdate) })
	f.logger.Info("student updated", "session_id", id, "department", step.Department, "year", year)
	return reply(msgUpdated), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (f *Flow) finish(ctx context.Context, id student.SessionID) {
	f.otp.Discard(ctx, id)
	f.sessions.Delete(ctx, id)
}

// abandon удаляет сессию и её код. Пустая причина не записывается.
func (f *Flow) abandon(ctx context.Context, id student.SessionID, reason string) {
	_, wasActive := f.sessions.Get(ctx, id)
	f.finish(ctx, id)
	if wasActive && reason != "" {
		f.record(func(r Recorder) { r.RegistrationAbandoned(reason) })
		f.logger.Info("registration abandoned", "session_id", id, "reason", reason)
	}
}

func (f *Flow) record(fn func(Recorder)) {
	if f.config.Recorder != nil {
		fn(f.config.Recorder)
	}
}

func (f *Flow) displayName(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return f.config.DefaultName
}

// command возвращает имя команды из "/cmd@bot args" в нижнем регистре или "".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

type consent int

const (
	consentUnknown consent = iota
	consentYes
	consentNo
)

func consentAnswer(text string) consent {
	switch strings.ToLower(strings.Join(strings.Fields(text), " ")) {
	case "yes", "y", "agree", "i agree", "accept", CallbackConsentAgree:
		return consentYes
	case "no", "n", "decline", "disagree", CallbackConsentDecline:
		return consentNo
	default:
		return consentUnknown
	}
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsFlowCommand сообщает, обрабатывает ли Flow эту команду.
func IsFlowCommand(text string) bool {
	switch command(strings.TrimSpace(text)) {
	case "start", "updateinfo", "cancel":
		return true
	default:
		return false
	}
}

// ErrNoSession возвращает Peek, если сессии нет.
var ErrNoSession = errors.New("no active session")

// Peek возвращает текущий шаг сессии для диагностики и тестов.
func (f *Flow) Peek(ctx context.Context, sessionID student.SessionID) (Step, error) {
	sess, ok := f.sessions.Get(ctx, sessionID)
	if !ok {
		return nil, ErrNoSession
	}
	return sess.Step, nil
}
