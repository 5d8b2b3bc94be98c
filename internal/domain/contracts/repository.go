package contracts

import (
	"context"
	"iter"
	"time"
)

// Store es la fuente de verdad de los contratos.
// CompareAndSwapState es el único camino de escritura sobre un contrato existente.
type Store interface {
	Create(ctx context.Context, c Contract) error
	GetByID(ctx context.Context, id string) (Contract, error)
	NextNumber(ctx context.Context) (int64, error)
	CompareAndSwapState(ctx context.Context, id string, expected Revision, next Contract) error
}

// AuditLog es append-only.
type AuditLog interface {
	Append(ctx context.Context, rec TransitionRecord) (TransitionRecord, error)
	// ListFor es perezoso, cronológico y reiniciable: cada range vuelve a empezar.
	ListFor(ctx context.Context, contractID string) iter.Seq2[TransitionRecord, error]
}

// Transactor agrupa CAS + append de auditoría en una sola unidad atómica.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ArtifactStore guarda los bytes de los documentos; las claves son direccionadas por contenido.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// DocumentCache es opcional (read-through delante del ArtifactStore).
type DocumentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

type Renderer interface {
	Render(c Contract) ([]byte, error)
}

type Embedder interface {
	Embed(doc []byte, sig NormalizedSignature, meta SignerMetadata) ([]byte, error)
}

type SignatureCapturer interface {
	Capture(p SignaturePayload) (NormalizedSignature, error)
}

// Point en coordenadas del canvas del cliente.
type Point struct {
	X float64
	Y float64
}

type StrokeCanvas struct {
	Width   float64
	Height  float64
	Strokes [][]Point
}

// SignaturePayload es la unión discriminada: exactamente uno de Strokes o Image.
type SignaturePayload struct {
	SignerName       string
	SignerIDDocument string
	Place            string
	Notes            string

	Strokes *StrokeCanvas
	Image   []byte
}

type NormalizedSignature struct {
	SignerName       string
	SignerIDDocument string
	PNG              []byte
	InkCoverage      float64
}

type SignerMetadata struct {
	Name       string
	IDDocument string
	SignedAt   time.Time
	Place      string
}
