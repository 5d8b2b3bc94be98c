package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"isp-contracts/internal/domain/contracts"
)

type contractRepo struct {
	mu   sync.RWMutex
	byID map[string]contracts.Contract
	seq  int64
}

func NewContractRepo() contracts.Store {
	return &contractRepo{
		byID: make(map[string]contracts.Contract),
	}
}

func (r *contractRepo) Create(ctx context.Context, c contracts.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(c.ID) == "" {
		return errors.New("contract id required")
	}
	if _, exists := r.byID[c.ID]; exists {
		return errors.New("contract already exists")
	}
	r.byID[c.ID] = c.Clone()
	return nil
}

func (r *contractRepo) GetByID(ctx context.Context, id string) (contracts.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return contracts.Contract{}, contracts.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *contractRepo) NextNumber(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	return r.seq, nil
}

// CompareAndSwapState reemplaza el snapshot solo si la revisión almacenada es la esperada.
// El número y la fecha de creación nunca cambian.
func (r *contractRepo) CompareAndSwapState(ctx context.Context, id string, expected contracts.Revision, next contracts.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok {
		return contracts.ErrNotFound
	}
	if cur.Revision() != expected {
		return contracts.ErrConflict
	}

	stored := next.Clone()
	stored.ID = cur.ID
	stored.Number = cur.Number
	stored.CreatedAt = cur.CreatedAt
	r.byID[id] = stored
	return nil
}
