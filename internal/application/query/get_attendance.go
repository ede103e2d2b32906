// Package query содержит операции чтения (CQRS - Queries).
package query

import (
	"context"

	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ATTENDANCE QUERY
// Текущая посещаемость студента по запросу /attendance.
// ══════════════════════════════════════════════════════════════════════════════

// GetAttendanceQuery содержит параметры запроса.
type GetAttendanceQuery struct {
	SessionID student.SessionID

	// OnFetching вызывается перед обращением к CARE, когда студент найден и
	// предметы известны. Необязательно.
	OnFetching func(ctx context.Context)
}

// Validate проверяет корректность параметров запроса.
func (q GetAttendanceQuery) Validate() error {
	if !q.SessionID.IsValid() {
		return shared.ErrInvalidSessionID
	}
	return nil
}

// SubjectLine - значение одного предмета. Present=false выводится как N/A.
type SubjectLine struct {
	Subject string
	Percent float64
	Present bool
}

// GetAttendanceResult - ответ на запрос посещаемости.
type GetAttendanceResult struct {
	DisplayName string
	Department  student.Department
	Year        student.Year
	Subjects    []SubjectLine
	Overall     float64
	HasOverall  bool
}

// Ошибки запроса, на которые интерфейс отвечает отдельным сообщением.
var (
	ErrNotRegistered = shared.NewDomainError("query", "GetAttendance", shared.ErrNotFound, "student is not registered")
	ErrNoSubjects    = shared.NewDomainError("query", "GetAttendance", shared.ErrNotFound, "no subjects mapped")
)

// GetAttendanceHandler обрабатывает запрос посещаемости.
type GetAttendanceHandler struct {
	students    student.Repository
	client      attendance.Client
	catalog     attendance.SubjectCatalog
	defaultName string
}

// NewGetAttendanceHandler создаёт новый обработчик.
func NewGetAttendanceHandler(
	students student.Repository,
	client attendance.Client,
	catalog attendance.SubjectCatalog,
	defaultName string,
) *GetAttendanceHandler {
	if catalog == nil {
		catalog = attendance.DefaultCatalog()
	}
	if defaultName == "" {
		defaultName = "Student"
	}
	return &GetAttendanceHandler{
		students:    students,
		client:      client,
		catalog:     catalog,
		defaultName: defaultName,
	}
}

// Handle выполняет запрос. Возвращает ErrNotRegistered, ErrNoSubjects или
// ошибку вида ErrDataProvider, если данные получить не удалось.
func (h *GetAttendanceHandler) Handle(ctx context.Context, q GetAttendanceQuery) (*GetAttendanceResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rec, err := h.students.GetBySession(ctx, q.SessionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}

	subjects := h.catalog.Subjects(rec.Department, rec.Year)
	if len(subjects) == 0 {
		return nil, ErrNoSubjects
	}

	if q.OnFetching != nil {
		q.OnFetching(ctx)
	}
	reading, err := h.client.Fetch(ctx, rec.RegistrationNumber)
	if err != nil {
		return nil, shared.WrapError("query", "GetAttendance", shared.ErrDataProvider, "fetch failed", err)
	}
	if len(reading) == 0 {
		return nil, shared.ErrNoAttendanceData
	}

	result := &GetAttendanceResult{
		DisplayName: rec.DisplayNameOr(h.defaultName),
		Department:  rec.Department,
		Year:        rec.Year,
		Subjects:    make([]SubjectLine, 0, len(subjects)),
	}
	for _, s := range subjects {
		v, ok := reading[s]
		result.Subjects = append(result.Subjects, SubjectLine{Subject: s, Percent: v, Present: ok})
	}
	result.Overall, result.HasOverall = attendance.Overall(reading, subjects)
	return result, nil
}
