package memory

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"

	"isp-contracts/internal/domain/contracts"
)

const defaultAuditPageSize = 50

type auditLog struct {
	mu       sync.RWMutex
	byID     map[string][]contracts.TransitionRecord
	pageSize int
}

func NewAuditLog() contracts.AuditLog {
	return newAuditLog(defaultAuditPageSize)
}

func newAuditLog(pageSize int) *auditLog {
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}
	return &auditLog{
		byID:     make(map[string][]contracts.TransitionRecord),
		pageSize: pageSize,
	}
}

// Append asigna el siguiente Seq del contrato. Nunca modifica entradas existentes.
func (l *auditLog) Append(ctx context.Context, rec contracts.TransitionRecord) (contracts.TransitionRecord, error) {
	if strings.TrimSpace(rec.ContractID) == "" {
		return contracts.TransitionRecord{}, errors.New("audit: contract id required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec.Seq = int64(len(l.byID[rec.ContractID])) + 1
	l.byID[rec.ContractID] = append(l.byID[rec.ContractID], rec)
	return rec, nil
}

// ListFor lee por páginas; el lock se toma por página, no durante toda la iteración.
func (l *auditLog) ListFor(ctx context.Context, contractID string) iter.Seq2[contracts.TransitionRecord, error] {
	return func(yield func(contracts.TransitionRecord, error) bool) {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(contracts.TransitionRecord{}, err)
				return
			}

			page := l.page(contractID, offset)
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
			offset += len(page)
		}
	}
}

func (l *auditLog) page(contractID string, offset int) []contracts.TransitionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.byID[contractID]
	if offset >= len(all) {
		return nil
	}
	end := min(offset+l.pageSize, len(all))
	return append([]contracts.TransitionRecord(nil), all[offset:end]...)
}
