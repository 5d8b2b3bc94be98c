package contracts

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("contract not found")

	// ErrArtifactNotFound: la clave no existe en el ArtifactStore.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrConflict lo devuelven los stores cuando la revisión esperada no coincide.
	ErrConflict = errors.New("revision conflict")
)

// Reglas de InvalidTransitionError.
const (
	RuleUnknownState             = "unknown_state"
	RuleEdgeNotAllowed           = "edge_not_allowed"
	RuleReasonRequired           = "reason_required"
	RuleSignatureAlreadyEmbedded = "signature_already_embedded"
	RuleSignatureNotApplicable   = "signature_not_applicable"
)

// Reglas de InvalidSignatureError.
const (
	RuleSignerNameRequired       = "signer_name_required"
	RuleSignerIDDocumentRequired = "signer_id_document_required"
	RuleSignatureMissing         = "signature_missing"
	RuleSignatureAmbiguous       = "signature_ambiguous"
	RuleStrokesEmpty             = "strokes_empty"
	RuleCanvasInvalid            = "canvas_invalid"
	RuleImageTooLarge            = "image_too_large"
	RuleImageUnreadable          = "image_unreadable"
	RuleInkCoverageTooLow        = "ink_coverage_too_low"
)

// RuleError es implementado por toda la taxonomía; el handler expone Code y Rule al cliente.
type RuleError interface {
	error
	Code() string
	Rule() string
}

type InvalidTransitionError struct {
	From  State
	To    State
	Cause string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Cause)
}
func (e *InvalidTransitionError) Code() string { return "invalid_transition" }
func (e *InvalidTransitionError) Rule() string { return e.Cause }

type MissingSignatureError struct {
	ContractID string
}

func (e *MissingSignatureError) Error() string {
	return fmt.Sprintf("contract %s: signature required to activate", e.ContractID)
}
func (e *MissingSignatureError) Code() string { return "missing_signature" }
func (e *MissingSignatureError) Rule() string { return "signature_required" }

type TerminalStateError struct {
	ContractID string
	State      State
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("contract %s is in terminal state %s", e.ContractID, e.State)
}
func (e *TerminalStateError) Code() string { return "terminal_state" }
func (e *TerminalStateError) Rule() string { return "contract_is_" + string(e.State) }

type InvalidSignatureError struct {
	Cause  string
	Detail string
}

func (e *InvalidSignatureError) Error() string {
	if e.Detail == "" {
		return "invalid signature: " + e.Cause
	}
	return fmt.Sprintf("invalid signature: %s (%s)", e.Cause, e.Detail)
}
func (e *InvalidSignatureError) Code() string { return "invalid_signature" }
func (e *InvalidSignatureError) Rule() string { return e.Cause }

// RenderError: falta un campo obligatorio de la plantilla.
type RenderError struct {
	Field string
}

func (e *RenderError) Error() string {
	return "render: missing required field " + e.Field
}
func (e *RenderError) Code() string { return "render_error" }
func (e *RenderError) Rule() string { return "missing_" + e.Field }

type AnchorNotFoundError struct {
	Anchor string
}

func (e *AnchorNotFoundError) Error() string {
	return "embed: anchor " + e.Anchor + " not found"
}
func (e *AnchorNotFoundError) Code() string { return "anchor_not_found" }
func (e *AnchorNotFoundError) Rule() string { return "anchor_present" }

type SourceDocumentCorruptError struct {
	Reason string
}

func (e *SourceDocumentCorruptError) Error() string {
	return "source document corrupt: " + e.Reason
}
func (e *SourceDocumentCorruptError) Code() string { return "source_document_corrupt" }
func (e *SourceDocumentCorruptError) Rule() string { return e.Reason }

// ConcurrentModificationError es el único error reintentable: el caller debe releer y reintentar.
type ConcurrentModificationError struct {
	ContractID string
	Expected   Revision
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("contract %s changed concurrently (expected %s@v%d)", e.ContractID, e.Expected.State, e.Expected.Version)
}
func (e *ConcurrentModificationError) Code() string { return "concurrent_modification" }
func (e *ConcurrentModificationError) Rule() string { return "revision_unchanged" }
func (e *ConcurrentModificationError) Unwrap() error { return ErrConflict }

// Retryable indica si el caller puede releer y reintentar.
func Retryable(err error) bool {
	var cm *ConcurrentModificationError
	return errors.As(err, &cm)
}
