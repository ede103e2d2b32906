// Package attendance содержит доменную логику контроля посещаемости:
// каталог предметов, снимки последних значений, расчёт общего процента,
// поиск падений и решение об отправке предупреждения.
package attendance

import (
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// CatalogKey - пара (факультет, курс).
type CatalogKey struct {
	Department student.Department
	Year       student.Year
}

// SubjectCatalog - статическое соответствие (факультет, курс) -> коды предметов.
type SubjectCatalog map[CatalogKey][]string

// DefaultCatalog возвращает каталог, с которым бот работает в CARE.
func DefaultCatalog() SubjectCatalog {
	return SubjectCatalog{
		{student.DepartmentCSE, student.YearIV}:  {"CBM348", "GE3791", "AI3021", "OIM352", "GE3751"},
		{student.DepartmentCSE, student.YearIII}: {"CS3351", "CS3352", "CS3353"},
		{student.DepartmentECE, student.YearIV}:  {"EC4001", "EC4002", "EC4003"},
	}
}

// Subjects возвращает копию списка предметов. Пустой результат означает,
// что студента надо пропустить.
func (c SubjectCatalog) Subjects(dept student.Department, year student.Year) []string {
	subs := c[CatalogKey{Department: dept, Year: year}]
	if len(subs) == 0 {
		return nil
	}
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}
