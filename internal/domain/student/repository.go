package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище записей студентов. Запись атомарна на уровне
// одной записи: реализации обязаны сериализовать изменения.
type Repository interface {
	// GetBySession возвращает запись по идентификатору сессии.
	// Возвращает shared.ErrStudentNotFound, если записи нет.
	GetBySession(ctx context.Context, sessionID SessionID) (*Record, error)

	// GetByRegistration возвращает запись по номеру студента.
	// Возвращает shared.ErrStudentNotFound, если записи нет.
	GetByRegistration(ctx context.Context, reg RegistrationNumber) (*Record, error)

	// Upsert вставляет запись или обновляет существующую с тем же номером.
	// SessionID и контакт существующей записи перезаписываются.
	Upsert(ctx context.Context, record *Record) error

	// ListAll возвращает копию всех записей.
	ListAll(ctx context.Context) ([]*Record, error)
}
