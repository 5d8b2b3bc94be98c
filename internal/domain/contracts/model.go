package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type clasifica el contrato.
// @Enum service, permanence, commercial
type Type string

const (
	TypeService    Type = "service"
	TypePermanence Type = "permanence"
	TypeCommercial Type = "commercial"
)

func (t Type) Valid() bool {
	switch t {
	case TypeService, TypePermanence, TypeCommercial:
		return true
	default:
		return false
	}
}

// Terms son las condiciones económicas. nil = ausente (nunca se asume un valor por defecto).
type Terms struct {
	Currency                string
	MonthlyPrice            *decimal.Decimal
	InstallationFee         *decimal.Decimal
	EarlyTerminationPenalty *decimal.Decimal
}

// Signature guarda los hechos de la firma. La imagen pertenece solo al contrato.
type Signature struct {
	SignerName       string
	SignerIDDocument string
	SignedAt         time.Time // fecha_firma
	Place            string

	Image       []byte // PNG canónico
	ImageSHA256 string
}

// DocumentRef apunta al artefacto renderizado en el ArtifactStore.
type DocumentRef struct {
	Fingerprint string
	Key         string
	Size        int64
	RenderedAt  time.Time
}

type Observation struct {
	At      time.Time
	ActorID string
	State   State
	Text    string
}

// Contract es el registro legal que sigue la máquina de estados.
type Contract struct {
	ID     string
	Number string // inmutable una vez asignado

	Type       Type
	Permanence bool
	TermMonths int

	ClientID    string
	PlanID      string
	PlanName    string
	Terms       Terms
	GeneratedAt time.Time

	State State

	Signature    *Signature
	Document     *DocumentRef
	Observations []Observation

	// Version se incrementa en cada escritura; junto con State forma la revisión del CAS.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Revision es lo que el CAS compara contra lo almacenado.
type Revision struct {
	State   State
	Version int64
}

func (c Contract) Revision() Revision {
	return Revision{State: c.State, Version: c.Version}
}

// Clone devuelve una copia profunda (los stores nunca comparten slices ni punteros con el caller).
func (c Contract) Clone() Contract {
	out := c
	out.Terms = c.Terms.clone()
	if c.Signature != nil {
		s := *c.Signature
		s.Image = append([]byte(nil), c.Signature.Image...)
		out.Signature = &s
	}
	if c.Document != nil {
		d := *c.Document
		out.Document = &d
	}
	if c.Observations != nil {
		out.Observations = append([]Observation(nil), c.Observations...)
	}
	return out
}

func (t Terms) clone() Terms {
	out := t
	out.MonthlyPrice = cloneDecimal(t.MonthlyPrice)
	out.InstallationFee = cloneDecimal(t.InstallationFee)
	out.EarlyTerminationPenalty = cloneDecimal(t.EarlyTerminationPenalty)
	return out
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := d.Copy()
	return &v
}

// TransitionRecord pertenece al AuditLog; ContractID es solo una referencia.
type TransitionRecord struct {
	ContractID string
	Seq        int64
	ActorID    string
	From       State
	To         State
	At         time.Time
	Reason     string
}

// Artifact es lo que se sirve en GET /contracts/{id}/document.
type Artifact struct {
	Bytes       []byte
	Fingerprint string
	ContentType string
	// Stale indica que se sirvió el último artefacto bueno conocido.
	Stale bool
}

const DocumentContentType = "application/octet-stream"
