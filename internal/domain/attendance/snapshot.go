package attendance

import (
	"context"
	"math"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// Reading - проценты посещаемости по кодам предметов, как их вернул провайдер.
type Reading map[string]float64

// Clone возвращает копию.
func (r Reading) Clone() Reading {
	if r == nil {
		return nil
	}
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Finite возвращает копию без NaN и бесконечностей. Такие значения нельзя
// сохранить в JSON, и они не участвуют в расчётах.
func (r Reading) Finite() Reading {
	out := make(Reading, len(r))
	for k, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}

// Snapshot - последние наблюдённые значения для одного номера студента.
// Хранит все полученные предметы, поэтому сравнение по предметам из каталога
// всегда идёт с тем же набором данных, что был получен в прошлом цикле.
type Snapshot struct {
	Subjects   Reading   `json:"subjects"`
	Overall    *float64  `json:"overall,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Value возвращает процент по предмету, если он был в снимке.
func (s Snapshot) Value(subject string) (float64, bool) {
	v, ok := s.Subjects[subject]
	return v, ok
}

// Snapshots - снимки по номерам студентов.
type Snapshots map[student.RegistrationNumber]Snapshot

// Clone возвращает неглубокую копию карты (снимки неизменяемы после создания).
func (s Snapshots) Clone() Snapshots {
	out := make(Snapshots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// SnapshotRepository - хранилище снимков. Принадлежит монитору.
type SnapshotRepository interface {
	// Get возвращает снимок или shared.ErrSnapshotNotFound.
	Get(ctx context.Context, reg student.RegistrationNumber) (Snapshot, error)

	// LoadAll читает все снимки одним запросом.
	LoadAll(ctx context.Context) (Snapshots, error)

	// SetAll атомарно сохраняет все снимки: либо все, либо ничего.
	SetAll(ctx context.Context, snapshots Snapshots) error
}

// Client - источник посещаемости (внешняя система). Пустой результат
// и ошибка для монитора равнозначны.
type Client interface {
	Fetch(ctx context.Context, reg student.RegistrationNumber) (Reading, error)
}
