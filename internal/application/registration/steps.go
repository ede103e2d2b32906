package registration

import (
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEPS
// Каждый шаг хранит ровно те поля, что уже собраны. Интерфейс закрыт:
// варианты добавляются только в этом пакете.
// ══════════════════════════════════════════════════════════════════════════════

// Step - текущее положение сессии в диалоге.
type Step interface {
	// Name возвращает стабильное имя для логов.
	Name() string
	sealed()
}

// AwaitingConsent - ждём Agree или Decline.
type AwaitingConsent struct{}

// AwaitingIdentifier - ждём номер студента.
type AwaitingIdentifier struct{}

// AwaitingContact - ждём телефон или email.
type AwaitingContact struct {
	Registration student.RegistrationNumber
}

// AwaitingOtp - код отправлен на Contact.
type AwaitingOtp struct {
	Registration student.RegistrationNumber
	Contact      student.Contact
}

// AwaitingDepartment - личность подтверждена. В варианте обновления задан
// Existing, и проверка пропускается.
type AwaitingDepartment struct {
	Registration student.RegistrationNumber
	Contact      student.Contact
	Existing     *student.Record
}

// AwaitingYear - факультет выбран, ждём курс.
type AwaitingYear struct {
	Registration student.RegistrationNumber
	Contact      student.Contact
	Department   student.Department
	Existing     *student.Record
}

func (AwaitingConsent) Name() string    { return "awaiting_consent" }
func (AwaitingIdentifier) Name() string { return "awaiting_identifier" }
func (AwaitingContact) Name() string    { return "awaiting_contact" }
func (AwaitingOtp) Name() string        { return "awaiting_otp" }
func (AwaitingDepartment) Name() string { return "awaiting_department" }
func (AwaitingYear) Name() string       { return "awaiting_year" }

func (AwaitingConsent) sealed()    {}
func (AwaitingIdentifier) sealed() {}
func (AwaitingContact) sealed()    {}
func (AwaitingOtp) sealed()        {}
func (AwaitingDepartment) sealed() {}
func (AwaitingYear) sealed()       {}

// Session - временное состояние чата. Idle, Committed и Abandoned
// выражаются отсутствием Session.
type Session struct {
	Step        Step
	DisplayName string
	StartedAt   time.Time
}
