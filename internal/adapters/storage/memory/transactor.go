package memory

import (
	"context"
	"sync"
)

// Transactor serializa las unidades CAS + auditoría. El CAS del store sigue siendo
// quien detecta conflictos; el mutex solo evita intercalar dos unidades.
type Transactor struct {
	mu sync.Mutex
}

func NewTransactor() *Transactor {
	return &Transactor{}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
