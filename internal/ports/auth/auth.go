package auth

import "context"

// Claims del agente autenticado. UserID es el actor que queda en la auditoría.
type Claims struct {
	UserID   string
	Email    string
	TenantID string
}

// AuthVerifier verifica un bearer token. La autenticación es un colaborador externo:
// este servicio solo consume los claims.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
