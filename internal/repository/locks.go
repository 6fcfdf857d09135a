package repository

import (
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TechnicianLocks — процессные замки «на техника» для критической секции
// «проверить доступность, затем записать бронь». Внутри транзакции на
// Postgres дополнительно берётся advisory-замок, так что инвариант
// держится и при нескольких инстансах сервиса.
type TechnicianLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewTechnicianLocks() *TechnicianLocks {
	return &TechnicianLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock блокирует техника и возвращает функцию разблокировки.
func (l *TechnicianLocks) Lock(technicianID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[technicianID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[technicianID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// AcquireTechnicianTxLock берёт advisory-замок на техника в рамках
// текущей транзакции. Снимается сам при commit/rollback. Вне Postgres
// (sqlite в тестах) — no-op: там хватает процессного замка.
func AcquireTechnicianTxLock(tx *gorm.DB, technicianID uuid.UUID) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", technicianID.String()).Error
}
