// Package student содержит доменную модель студента, зарегистрированного в боте.
// Здесь живут value objects (номер зачётки, контакт, факультет, курс),
// сама запись студента и контракт хранилища.
package student

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/care-attendance/attendance-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// SessionID - стабильный идентификатор диалога (chat id транспорта).
// Используется как адрес доставки сообщений.
type SessionID string

// IsValid проверяет, что идентификатор не пустой.
func (s SessionID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String возвращает строковое представление.
func (s SessionID) String() string {
	return string(s)
}

// RegistrationNumber - номер студента во внешней академической системе (CARE).
type RegistrationNumber string

// String возвращает строковое представление номера.
func (r RegistrationNumber) String() string {
	return string(r)
}

// RegistrationFormat описывает формат номера: фиксированный префикс
// и суффикс из цифр строго заданной длины.
type RegistrationFormat struct {
	Prefix       string
	SuffixLength int
}

// DefaultRegistrationFormat возвращает формат номеров CARE: "8107" + 8 цифр.
func DefaultRegistrationFormat() RegistrationFormat {
	return RegistrationFormat{
		Prefix:       "8107",
		SuffixLength: 8,
	}
}

// Parse проверяет ввод пользователя и возвращает номер.
func (f RegistrationFormat) Parse(raw string) (RegistrationNumber, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, f.Prefix) {
		return "", shared.ErrInvalidRegistrationNumber
	}
	suffix := s[len(f.Prefix):]
	if len(suffix) != f.SuffixLength || !isDigits(suffix) {
		return "", shared.ErrInvalidRegistrationNumber
	}
	return RegistrationNumber(s), nil
}

// Hint возвращает пример формата для подсказки пользователю.
func (f RegistrationFormat) Hint() string {
	return f.Prefix + strings.Repeat("x", f.SuffixLength)
}

// ContactMode - способ подтверждения личности.
type ContactMode string

const (
	// ContactPhone - 10-значный номер телефона.
	ContactPhone ContactMode = "phone"
	// ContactEmail - адрес электронной почты.
	ContactEmail ContactMode = "email"
)

// IsValid проверяет, что режим известен.
func (m ContactMode) IsValid() bool {
	return m == ContactPhone || m == ContactEmail
}

// Contact - телефон или email, на который отправляется одноразовый код.
type Contact string

// String возвращает строковое представление контакта.
func (c Contact) String() string {
	return string(c)
}

// ParseContact проверяет контакт в соответствии с режимом.
//   - phone: ровно 10 ASCII-цифр;
//   - email: local@domain, local не пустой, domain не пустой и содержит точку.
func ParseContact(mode ContactMode, raw string) (Contact, error) {
	s := strings.TrimSpace(raw)
	switch mode {
	case ContactPhone:
		if len(s) != 10 || !isDigits(s) {
			return "", shared.ErrInvalidContact
		}
	case ContactEmail:
		local, domain, ok := strings.Cut(s, "@")
		if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
			return "", shared.ErrInvalidContact
		}
		if !strings.Contains(domain, ".") || strings.ContainsAny(s, " \t\r\n") {
			return "", shared.ErrInvalidContact
		}
	default:
		return "", shared.ErrInvalidContact
	}
	return Contact(s), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Department - факультет в канонической форме.
type Department string

const (
	DepartmentCSE  Department = "CSE"
	DepartmentMECH Department = "MECH"
	DepartmentECE  Department = "ECE"
	DepartmentAIDS Department = "AIDS"
)

// Departments возвращает все допустимые факультеты в порядке отображения.
func Departments() []Department {
	return []Department{DepartmentCSE, DepartmentMECH, DepartmentECE, DepartmentAIDS}
}

// IsValid проверяет, что факультет входит в перечисление.
func (d Department) IsValid() bool {
	switch d {
	case DepartmentCSE, DepartmentMECH, DepartmentECE, DepartmentAIDS:
		return true
	default:
		return false
	}
}

// NormalizeDepartment приводит ввод к верхнему регистру и убирает всё,
// кроме букв и цифр. "AI&DS", "ai ds" и "A.I.D.S" дают "AIDS".
// Функция идемпотентна.
func NormalizeDepartment(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// ParseDepartment нормализует ввод и проверяет его по перечислению.
func ParseDepartment(raw string) (Department, error) {
	d := Department(NormalizeDepartment(raw))
	if !d.IsValid() {
		return "", shared.ErrInvalidDepartment
	}
	return d, nil
}

// Year - курс обучения (I..IV).
type Year string

const (
	YearI   Year = "I"
	YearII  Year = "II"
	YearIII Year = "III"
	YearIV  Year = "IV"
)

// Years возвращает все курсы по порядку.
func Years() []Year {
	return []Year{YearI, YearII, YearIII, YearIV}
}

// IsValid проверяет, что курс входит в перечисление.
func (y Year) IsValid() bool {
	switch y {
	case YearI, YearII, YearIII, YearIV:
		return true
	default:
		return false
	}
}

// ParseYear принимает римский номер курса без учёта регистра.
func ParseYear(raw string) (Year, error) {
	y := Year(strings.ToUpper(strings.TrimSpace(raw)))
	if !y.IsValid() {
		return "", shared.ErrInvalidYear
	}
	return y, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - зарегистрированный студент.
type Record struct {
	// SessionID - адрес доставки уведомлений. Не более одной записи на сессию.
	SessionID SessionID `json:"session_id" validate:"required"`

	// RegistrationNumber - ключ во внешней системе, ключ upsert.
	// Формат проверяет RegistrationFormat.Parse: префикс настраивается.
	RegistrationNumber RegistrationNumber `json:"registration_number" validate:"required,max=64"`

	// DisplayName - имя из профиля транспорта.
	DisplayName string `json:"display_name" validate:"max=128"`

	// Contact - подтверждённый телефон или email.
	Contact Contact `json:"contact" validate:"required"`

	// Department - факультет в канонической форме.
	Department Department `json:"department" validate:"required,oneof=CSE MECH ECE AIDS"`

	// Year - курс.
	Year Year `json:"year" validate:"required,oneof=I II III IV"`

	// CreatedAt - время первой регистрации.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate проверяет запись перед сохранением.
func (r *Record) Validate() error {
	if r == nil {
		return shared.NewDomainError("student", "Validate", shared.ErrValidation, "record is nil")
	}
	if err := recordValidator().Struct(r); err != nil {
		return shared.WrapError("student", "Validate", shared.ErrValidation, "record is invalid", err)
	}
	return nil
}

// Clone возвращает копию записи.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// DisplayNameOr возвращает имя или запасное значение, если имя пустое.
func (r *Record) DisplayNameOr(fallback string) string {
	if r == nil || strings.TrimSpace(r.DisplayName) == "" {
		return fallback
	}
	return r.DisplayName
}

func isDigits(s string) bool {
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
