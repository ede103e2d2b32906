package attendance

import (
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLDS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// CriticalThreshold - ниже этого общего процента предупреждение критическое.
	CriticalThreshold = 75.0

	// WarningThreshold - ниже этого общего процента отправляется предупреждение.
	WarningThreshold = 80.0

	// DropEpsilon - допуск при поиске падений, доля от прошлого значения.
	// При 90% падением считается значение ниже 89.1%.
	DropEpsilon = 0.01
)

// Severity - уровень предупреждения.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityDropOnly Severity = "drop_only"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ══════════════════════════════════════════════════════════════════════════════
// OVERALL & DROPS
// ══════════════════════════════════════════════════════════════════════════════

// Overall считает среднее по предметам каталога, присутствующим в данных.
// Отсутствующие предметы исключаются, а не считаются нулём.
// Результат округляется до двух знаков. ok=false, если ни одного предмета нет.
func Overall(reading Reading, subjects []string) (overall float64, ok bool) {
	var sum float64
	var n int
	for _, s := range subjects {
		if v, present := reading[s]; present {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return math.Round(sum/float64(n)*100) / 100, true
}

// Drop - падение посещаемости по одному предмету между двумя снимками.
type Drop struct {
	Subject string
	Old     float64
	New     float64
}

// String форматирует падение как "A: 90.00% -> 88.00%".
func (d Drop) String() string {
	return fmt.Sprintf("%s: %.2f%% -> %.2f%%", d.Subject, d.Old, d.New)
}

// DetectDrops сравнивает предметы каталога, присутствующие в обоих снимках.
// Предмет без прошлого значения падением не считается.
func DetectDrops(prev Snapshot, cur Reading, subjects []string) []Drop {
	var drops []Drop
	for _, s := range subjects {
		old, hadOld := prev.Value(s)
		now, hasNow := cur[s]
		if !hadOld || !hasNow {
			continue
		}
		if now < old-old*DropEpsilon {
			drops = append(drops, Drop{Subject: s, Old: old, New: now})
		}
	}
	return drops
}

// ClassifySeverity определяет уровень по общему проценту и наличию падений.
func ClassifySeverity(overall float64, hasDrops bool) Severity {
	switch {
	case overall < CriticalThreshold:
		return SeverityCritical
	case overall < WarningThreshold:
		return SeverityWarning
	case hasDrops:
		return SeverityDropOnly
	default:
		return SeverityNone
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Line - значение одного предмета для разбивки в сообщении.
type Line struct {
	Subject string
	Percent float64
}

// Evaluation - результат сравнения нового снимка с прошлым.
type Evaluation struct {
	Overall    float64
	HasOverall bool
	Drops      []Drop
	Severity   Severity
	Breakdown  []Line
}

// AlertDue возвращает true, если студенту нужно отправить сообщение.
func (e Evaluation) AlertDue() bool {
	return e.HasOverall && e.Severity != SeverityNone
}

// Evaluate считает общий процент, падения и уровень предупреждения.
func Evaluate(prev Snapshot, cur Reading, subjects []string) Evaluation {
	ev := Evaluation{Severity: SeverityNone}
	ev.Overall, ev.HasOverall = Overall(cur, subjects)
	ev.Drops = DetectDrops(prev, cur, subjects)
	for _, s := range subjects {
		if v, ok := cur[s]; ok {
			ev.Breakdown = append(ev.Breakdown, Line{Subject: s, Percent: v})
		}
	}
	if ev.HasOverall {
		ev.Severity = ClassifySeverity(ev.Overall, len(ev.Drops) > 0)
	}
	return ev
}

// Alert - сообщение о посещаемости для одного студента за один цикл.
type Alert struct {
	DisplayName string
	Evaluation
}
