package billing

import (
	"context"
	"time"
)

// ContractActivated es lo que facturación necesita para empezar a cobrar.
type ContractActivated struct {
	ContractID     string
	ContractNumber string
	ClientID       string
	PlanID         string
	MonthlyPrice   string
	Currency       string
	SignedAt       time.Time
}

// Notifier avisa al colaborador de facturación (fuera de alcance) sobre activaciones.
type Notifier interface {
	ContractActivated(ctx context.Context, ev ContractActivated) error
}
