package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/persistence/memory"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeRepo struct {
	mu        sync.Mutex
	records   map[student.RegistrationNumber]*student.Record
	upserts   int
	upsertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[student.RegistrationNumber]*student.Record)}
}

func (r *fakeRepo) GetBySession(_ context.Context, id student.SessionID) (*student.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.SessionID == id {
			return rec.Clone(), nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

func (r *fakeRepo) GetByRegistration(_ context.Context, reg student.RegistrationNumber) (*student.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[reg]; ok {
		return rec.Clone(), nil
	}
	return nil, shared.ErrStudentNotFound
}

func (r *fakeRepo) Upsert(_ context.Context, rec *student.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	for reg, other := range r.records {
		if other.SessionID == rec.SessionID && reg != rec.RegistrationNumber {
			delete(r.records, reg)
		}
	}
	r.records[rec.RegistrationNumber] = rec.Clone()
	r.upserts++
	return nil
}

func (r *fakeRepo) ListAll(_ context.Context) ([]*student.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*student.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

type outbox struct {
	mu   sync.Mutex
	sent []otp.Delivery
	err  error
}

func (o *outbox) Deliver(_ context.Context, d otp.Delivery) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, d)
	return nil
}

func (o *outbox) last() otp.Delivery {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

type countingRecorder struct {
	started, completed, abandoned map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{started: map[string]int{}, completed: map[string]int{}, abandoned: map[string]int{}}
}

func (c *countingRecorder) RegistrationStarted(kind string)     { c.started[kind]++ }
func (c *countingRecorder) RegistrationCompleted(kind string)   { c.completed[kind]++ }
func (c *countingRecorder) RegistrationAbandoned(reason string) { c.abandoned[reason]++ }

// =============================================================================
// Suite
// =============================================================================

const (
	session  = student.SessionID("1001")
	validReg = "810712345678"
	validTel = "9876543210"
)

type FlowSuite struct {
	suite.Suite
	ctx      context.Context
	repo     *fakeRepo
	sessions *memory.Map[student.SessionID, Session]
	outbox   *outbox
	clock    *timeutil.ManualClock
	recorder *countingRecorder
	flow     *Flow
	codes    []string
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = newFakeRepo()
	s.sessions = memory.NewMap[student.SessionID, Session]()
	s.outbox = &outbox{}
	s.clock = timeutil.NewManualClock(time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC))
	s.recorder = newCountingRecorder()
	s.codes = []string{"482913", "771045", "300200"}
	s.flow = s.newFlow(student.ContactPhone)
}

func (s *FlowSuite) newFlow(mode student.ContactMode) *Flow {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := 0
	svc := otp.NewService(memory.NewOtpStore(), s.outbox, otp.ServiceConfig{
		Expiry:     5 * time.Minute,
		BcryptCost: bcrypt.MinCost,
		Clock:      s.clock,
		Logger:     logger,
		Generate: func() (string, error) {
			c := s.codes[next%len(s.codes)]
			next++
			return c, nil
		},
	})
	cfg := DefaultConfig()
	cfg.ContactMode = mode
	cfg.Clock = s.clock
	cfg.Logger = logger
	cfg.Recorder = s.recorder
	return NewFlow(s.sessions, s.repo, svc, cfg)
}

func (s *FlowSuite) send(text string) []Outbound {
	out, err := s.flow.HandleInput(s.ctx, Input{SessionID: session, Text: text, DisplayName: "Priya"})
	s.Require().NoError(err)
	s.Require().NotEmpty(out, "every input produces at least one message")
	return out
}

func (s *FlowSuite) sendText(text string) string {
	return s.send(text)[0].Text
}

func (s *FlowSuite) step() Step {
	st, err := s.flow.Peek(s.ctx, session)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	s.Require().NoError(err)
	return st
}

// advanceToOtp walks the happy path up to the OTP prompt.
func (s *FlowSuite) advanceToOtp() {
	s.send("/start")
	s.send("agree")
	s.send(validReg)
	s.send(validTel)
	s.Require().IsType(AwaitingOtp{}, s.step())
}

// =============================================================================
// Happy path
// =============================================================================

func (s *FlowSuite) TestFullRegistration() {
	out := s.send("/start")
	s.Contains(out[0].Text, "Hi Priya!")
	s.Require().Len(out[0].Buttons, 2)
	s.Equal(CallbackConsentAgree, out[0].Buttons[0].Data)
	s.IsType(AwaitingConsent{}, s.step())

	s.Equal("Enter your CARE Register Number (starts with 8107):", s.sendText(CallbackConsentAgree))
	s.IsType(AwaitingIdentifier{}, s.step())

	s.Equal(msgAskMobile, s.sendText(validReg))
	s.Equal(AwaitingContact{Registration: validReg}, s.step())

	s.Equal("Enter the OTP here to verify (valid 5 mins):", s.sendText(validTel))
	s.Equal(AwaitingOtp{Registration: validReg, Contact: validTel}, s.step())
	s.Equal("482913", s.outbox.last().Code)
	s.Equal(student.Contact(validTel), s.outbox.last().Contact)

	s.Equal(msgAskDepartment, s.sendText("482913"))
	s.Equal(msgAskYear, s.sendText("ai & ds"))
	s.Equal(msgRegistered, s.sendText(" iii "))
	s.Nil(s.step())

	s.Require().Len(s.repo.records, 1)
	rec := s.repo.records[validReg]
	s.Equal(session, rec.SessionID)
	s.Equal("Priya", rec.DisplayName)
	s.Equal(student.Contact(validTel), rec.Contact)
	s.Equal(student.DepartmentAIDS, rec.Department)
	s.Equal(student.YearIII, rec.Year)
	s.Equal(1, s.repo.upserts)
	s.Equal(1, s.recorder.completed[KindRegister])
}

func (s *FlowSuite) TestEmailVerification() {
	s.flow = s.newFlow(student.ContactEmail)
	s.send("/start")
	s.send("yes")
	s.Equal(msgAskEmail, s.sendText(validReg))
	s.Equal(msgInvalidEmail, s.sendText("priya@localhost"))
	s.Equal("OTP sent to priya@college.edu. Enter it here to verify (valid 5 mins):", s.sendText("priya@college.edu"))
	s.Equal(student.Contact("priya@college.edu"), s.outbox.last().Contact)
}

// =============================================================================
// Consent
// =============================================================================

func (s *FlowSuite) TestConsentAnswers() {
	s.send("/start")
	s.Equal(msgConsentRetry, s.sendText("maybe"))
	s.IsType(AwaitingConsent{}, s.step())

	s.Equal(msgConsentDeclined, s.sendText("No"))
	s.Nil(s.step())
	s.Equal(1, s.recorder.abandoned[ReasonDeclined])

	s.send("/start")
	s.sendText("I  Agree")
	s.IsType(AwaitingIdentifier{}, s.step())
}

func (s *FlowSuite) TestAlreadyRegistered() {
	s.repo.records[validReg] = &student.Record{SessionID: session, RegistrationNumber: validReg, DisplayName: "Priya S", Contact: validTel, Department: "CSE", Year: "IV"}

	s.Equal("Already registered as Priya S. Use /attendance.", s.sendText("/start"))
	s.Nil(s.step())
}

// =============================================================================
// Validation re-prompts
// =============================================================================

func (s *FlowSuite) TestInvalidInputsRePrompt() {
	s.send("/start")
	s.send("y")

	for _, bad := range []string{"12345678", "8107123", "81071234567a", "8108123456789"} {
		s.Equal("Invalid register number. Try again (8107xxxxxxxx).", s.sendText(bad), bad)
		s.IsType(AwaitingIdentifier{}, s.step())
	}
	s.send(validReg)

	for _, bad := range []string{"98765", "98765432100", "98765abcde"} {
		s.Equal(msgInvalidMobile, s.sendText(bad), bad)
	}
	s.send(validTel)

	s.Equal(msgOtpNotNumeric, s.sendText("abc"))
	s.Equal(msgOtpWrong, s.sendText("000000"))
	s.Equal(msgOtpWrong, s.sendText("12345"))
	s.IsType(AwaitingOtp{}, s.step())
	s.send("482913")

	s.Equal(msgInvalidDept, s.sendText("civil"))
	s.send("cse")
	s.Equal(msgInvalidYear, s.sendText("V"))
	s.IsType(AwaitingYear{}, s.step())
	s.Equal(0, s.repo.upserts)
}

// =============================================================================
// OTP lifecycle
// =============================================================================

func (s *FlowSuite) TestOtpExpiryAbandons() {
	s.advanceToOtp()
	s.clock.Advance(5*time.Minute + time.Second)

	s.Equal(msgOtpExpired, s.sendText("482913"))
	s.Nil(s.step())
	s.Equal(1, s.recorder.abandoned[ReasonOtpExpired])

	s.Equal(msgInvalidInput, s.sendText("482913"))
}

func (s *FlowSuite) TestOtpExpiryCheckedBeforeFormat() {
	s.advanceToOtp()
	s.clock.Advance(6 * time.Minute)

	s.Equal(msgOtpExpired, s.sendText("abc"))
}

func (s *FlowSuite) TestOtpAtWindowEdgeIsAccepted() {
	s.advanceToOtp()
	s.clock.Advance(5 * time.Minute)

	s.Equal(msgAskDepartment, s.sendText("482913"))
}

func (s *FlowSuite) TestRestartInvalidatesPreviousCode() {
	s.advanceToOtp()
	s.advanceToOtp()

	s.Equal(msgOtpWrong, s.sendText("482913"))
	s.Equal(msgAskDepartment, s.sendText("771045"))
}

func (s *FlowSuite) TestDeliveryFailureAbandons() {
	s.outbox.err = errors.New("smtp down")
	s.send("/start")
	s.send("yes")
	s.send(validReg)

	s.Equal(msgDeliveryFailed, s.sendText(validTel))
	s.Nil(s.step())
	s.Equal(1, s.recorder.abandoned[ReasonDelivery])
}

// =============================================================================
// Commit and update
// =============================================================================

func (s *FlowSuite) TestStoreFailureAbandons() {
	s.advanceToOtp()
	s.send("482913")
	s.send("MECH")

	s.repo.upsertErr = shared.WrapError("student", "Upsert", shared.ErrStorage, "disk full", errors.New("ENOSPC"))
	out, err := s.flow.HandleInput(s.ctx, Input{SessionID: session, Text: "II"})
	s.Error(err)
	s.True(shared.IsStorage(err))
	s.Equal(msgSaveFailed, out[0].Text)
	s.Nil(s.step())
}

func (s *FlowSuite) TestReRegistrationOverwritesByRegistrationNumber() {
	s.repo.records[validReg] = &student.Record{SessionID: "2002", RegistrationNumber: validReg, DisplayName: "Old", Contact: "1111111111", Department: "CSE", Year: "I"}

	s.advanceToOtp()
	s.send("482913")
	s.send("ECE")
	s.send("IV")

	s.Require().Len(s.repo.records, 1)
	rec := s.repo.records[validReg]
	s.Equal(session, rec.SessionID)
	s.Equal(student.Contact(validTel), rec.Contact)
	s.Equal(student.DepartmentECE, rec.Department)
}

func (s *FlowSuite) TestUpdateInfo() {
	s.repo.records[validReg] = &student.Record{SessionID: session, RegistrationNumber: validReg, DisplayName: "Priya", Contact: validTel, Department: "CSE", Year: "III"}

	s.Equal(msgAskNewDepartment, s.sendText("/updateinfo"))
	s.True(s.flow.Active(s.ctx, session))
	s.Equal(msgAskNewYear, s.sendText("A.I.D.S"))
	s.Equal(msgUpdated, s.sendText("iv"))

	rec := s.repo.records[validReg]
	s.Equal(student.DepartmentAIDS, rec.Department)
	s.Equal(student.YearIV, rec.Year)
	s.Equal(student.Contact(validTel), rec.Contact)
	s.Empty(s.outbox.sent, "update skips verification")
	s.Equal(1, s.recorder.completed[KindUpdate])
}

func (s *FlowSuite) TestUpdateInfoWithoutRecord() {
	s.Equal(msgNotRegistered, s.sendText("/updateinfo"))
	s.Nil(s.step())
}

func (s *FlowSuite) TestCancel() {
	s.Equal(msgNothingToCancel, s.sendText("/cancel"))

	s.advanceToOtp()
	s.Equal(msgCancelled, s.sendText("/cancel@care_bot"))
	s.Nil(s.step())
	s.Equal(1, s.recorder.abandoned[ReasonCancelled])

	s.Equal(msgInvalidInput, s.sendText("482913"))
}

func (s *FlowSuite) TestInvalidSessionID() {
	_, err := s.flow.HandleInput(s.ctx, Input{SessionID: " ", Text: "/start"})
	s.True(shared.IsValidation(err))
}

func TestIsFlowCommand(t *testing.T) {
	assert.True(t, IsFlowCommand("/start"))
	assert.True(t, IsFlowCommand("/UpdateInfo@care_bot"))
	assert.True(t, IsFlowCommand(" /cancel "))
	assert.False(t, IsFlowCommand("/attendance"))
	assert.False(t, IsFlowCommand("start"))
}
