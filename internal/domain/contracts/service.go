package contracts

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"isp-contracts/internal/platform/logger"
	"isp-contracts/internal/platform/metrics"
	"isp-contracts/internal/ports/billing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Deps son las dependencias del servicio. Cache, Notifier, Logger y Metrics son opcionales.
type Deps struct {
	Store     Store
	Audit     AuditLog
	Tx        Transactor
	Artifacts ArtifactStore
	Renderer  Renderer
	Embedder  Embedder
	Capturer  SignatureCapturer

	Cache    DocumentCache
	Notifier billing.Notifier
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

// Service es la máquina de estados: el único componente que cambia el estado de un contrato.
type Service struct {
	store     Store
	audit     AuditLog
	tx        Transactor
	artifacts ArtifactStore
	cache     DocumentCache
	renderer  Renderer
	embedder  Embedder
	capturer  SignatureCapturer
	notifier  billing.Notifier
	log       logger.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	renders singleflight.Group
	now     func() time.Time
}

func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     d.Store,
		audit:     d.Audit,
		tx:        d.Tx,
		artifacts: d.Artifacts,
		cache:     d.Cache,
		renderer:  d.Renderer,
		embedder:  d.Embedder,
		capturer:  d.Capturer,
		notifier:  d.Notifier,
		log:       log,
		metrics:   d.Metrics,
		tracer:    otel.Tracer("isp-contracts/contracts"),
		now:       time.Now,
	}
}

// clock: UTC truncado a microsegundos (precisión de timestamptz).
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type CreateInput struct {
	Type       Type
	Permanence bool
	TermMonths int
	ClientID   string
	PlanID     string
	PlanName   string
	Terms      Terms
}

// Create registra un contrato en draft. En producción lo invoca el colaborador de generación.
func (s *Service) Create(ctx context.Context, in CreateInput) (Contract, error) {
	if strings.TrimSpace(in.ClientID) == "" || strings.TrimSpace(in.PlanID) == "" {
		return Contract{}, ErrInvalidInput
	}
	typ := in.Type
	if typ == "" {
		typ = TypeService
	}
	if !typ.Valid() {
		return Contract{}, ErrInvalidInput
	}
	if in.TermMonths < 0 || (in.Permanence && in.TermMonths == 0) {
		return Contract{}, ErrInvalidInput
	}

	seq, err := s.store.NextNumber(ctx)
	if err != nil {
		return Contract{}, err
	}

	now := s.clock()
	terms := in.Terms.clone()
	terms.Currency = strings.ToUpper(strings.TrimSpace(terms.Currency))

	c := Contract{
		ID:          uuid.NewString(),
		Number:      fmt.Sprintf("CT-%d-%06d", now.Year(), seq),
		Type:        typ,
		Permanence:  in.Permanence,
		TermMonths:  in.TermMonths,
		ClientID:    strings.TrimSpace(in.ClientID),
		PlanID:      strings.TrimSpace(in.PlanID),
		PlanName:    strings.TrimSpace(in.PlanName),
		Terms:       terms,
		GeneratedAt: now,
		State:       StateDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, c); err != nil {
		return Contract{}, err
	}

	logger.FromContext(ctx, s.log).Info("contract created", map[string]any{
		"contract_id": c.ID,
		"number":      c.Number,
	})
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (Contract, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Contract{}, ErrInvalidInput
	}
	return s.store.GetByID(ctx, id)
}

// Transitions devuelve el historial de auditoría del contrato.
func (s *Service) Transitions(ctx context.Context, id string) iter.Seq2[TransitionRecord, error] {
	return s.audit.ListFor(ctx, id)
}

type TransitionRequest struct {
	Target  State
	ActorID string
	Reason  string
	Notes   string

	Signature *SignaturePayload
}

// RequestTransition valida todas las precondiciones antes de escribir y confirma
// estado + auditoría en una sola transacción protegida por CAS.
func (s *Service) RequestTransition(ctx context.Context, id string, req TransitionRequest) (out Contract, err error) {
	ctx, span := s.tracer.Start(ctx, "contracts.RequestTransition", trace.WithAttributes(
		attribute.String("contract.id", id),
		attribute.String("contract.target", string(req.Target)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := logger.FromContext(ctx, s.log).With(map[string]any{
		"contract_id": id,
		"target":      string(req.Target),
	})

	if !req.Target.Valid() {
		return Contract{}, &InvalidTransitionError{To: req.Target, Cause: RuleUnknownState}
	}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return Contract{}, err
	}

	next, err := s.plan(ctx, cur, req)
	if err != nil {
		s.metrics.IncTransition(string(cur.State), string(req.Target), "rejected")
		var sigErr *InvalidSignatureError
		if errors.As(err, &sigErr) {
			s.metrics.IncSignatureRejection(sigErr.Rule())
		}
		log.Info("transition rejected", map[string]any{"from": string(cur.State), "error": err})
		return Contract{}, err
	}
	if next == nil {
		// mismo estado, sin firma: no-op idempotente, sin entrada de auditoría
		s.metrics.IncTransition(string(cur.State), string(req.Target), "noop")
		return cur, nil
	}

	rec := TransitionRecord{
		ContractID: cur.ID,
		ActorID:    strings.TrimSpace(req.ActorID),
		From:       cur.State,
		To:         next.State,
		At:         next.UpdatedAt,
		Reason:     transitionReason(req),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.CompareAndSwapState(ctx, cur.ID, cur.Revision(), *next); err != nil {
			return err
		}
		stored, err := s.audit.Append(ctx, rec)
		if err != nil {
			return err
		}
		rec = stored
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.IncTransition(string(cur.State), string(req.Target), "conflict")
			log.Warn("transition lost race", map[string]any{"from": string(cur.State)})
			return Contract{}, &ConcurrentModificationError{ContractID: cur.ID, Expected: cur.Revision()}
		}
		s.metrics.IncTransition(string(cur.State), string(req.Target), "error")
		return Contract{}, err
	}

	s.metrics.IncTransition(string(rec.From), string(rec.To), "ok")
	log.Info("contract transitioned", map[string]any{
		"from":  string(rec.From),
		"seq":   rec.Seq,
		"actor": rec.ActorID,
	})

	if next.State == StateActive {
		s.notifyActivation(ctx, *next)
	}
	return *next, nil
}

// plan calcula el siguiente snapshot sin persistir nada. nil, nil = no-op.
func (s *Service) plan(ctx context.Context, cur Contract, req TransitionRequest) (*Contract, error) {
	target := req.Target
	if !target.Valid() {
		return nil, &InvalidTransitionError{From: cur.State, To: target, Cause: RuleUnknownState}
	}
	if cur.State.Terminal() {
		return nil, &TerminalStateError{ContractID: cur.ID, State: cur.State}
	}
	if cur.State == target {
		if req.Signature != nil {
			return nil, &InvalidTransitionError{From: cur.State, To: target, Cause: RuleSignatureAlreadyEmbedded}
		}
		return nil, nil
	}
	if !CanTransition(cur.State, target) {
		return nil, &InvalidTransitionError{From: cur.State, To: target, Cause: RuleEdgeNotAllowed}
	}
	reason := strings.TrimSpace(req.Reason)
	if requiresReason(target) && reason == "" {
		return nil, &InvalidTransitionError{From: cur.State, To: target, Cause: RuleReasonRequired}
	}
	if req.Signature != nil && !requiresSignature(target) {
		return nil, &InvalidTransitionError{From: cur.State, To: target, Cause: RuleSignatureNotApplicable}
	}

	now := s.clock()
	next := cur.Clone()
	next.State = target
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	actor := strings.TrimSpace(req.ActorID)
	for _, text := range []string{reason, strings.TrimSpace(req.Notes)} {
		if text != "" {
			next.Observations = append(next.Observations, Observation{At: now, ActorID: actor, State: target, Text: text})
		}
	}

	switch {
	case requiresSignature(target):
		if req.Signature == nil {
			return nil, &MissingSignatureError{ContractID: cur.ID}
		}
		sig, err := s.capturer.Capture(*req.Signature)
		if err != nil {
			return nil, err
		}
		next.Signature = &Signature{
			SignerName:       sig.SignerName,
			SignerIDDocument: sig.SignerIDDocument,
			SignedAt:         now,
			Place:            strings.TrimSpace(req.Signature.Place),
			Image:            sig.PNG,
			ImageSHA256:      sha256Hex(sig.PNG),
		}
		// sin documento firmado no hay activación
		ref, _, err := s.renderArtifact(ctx, next)
		if err != nil {
			return nil, err
		}
		next.Document = &ref

	case target.Terminal():
		// último render permitido: el artefacto queda congelado
		ref, _, err := s.renderArtifact(ctx, next)
		if err != nil {
			logger.FromContext(ctx, s.log).Warn("final render failed, keeping last artifact", map[string]any{
				"contract_id": cur.ID,
				"error":       err,
			})
		} else {
			next.Document = &ref
		}
	}

	return &next, nil
}

// AddObservation agrega una anotación sin cambiar el estado. Cambia el fingerprint,
// así que el próximo GET del documento re-renderiza.
func (s *Service) AddObservation(ctx context.Context, id, actorID, text string) (Contract, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Contract{}, ErrInvalidInput
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Contract{}, err
	}
	if cur.State.Terminal() {
		return Contract{}, &TerminalStateError{ContractID: cur.ID, State: cur.State}
	}

	now := s.clock()
	next := cur.Clone()
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	next.Observations = append(next.Observations, Observation{
		At:      now,
		ActorID: strings.TrimSpace(actorID),
		State:   cur.State,
		Text:    text,
	})

	if err := s.store.CompareAndSwapState(ctx, cur.ID, cur.Revision(), next); err != nil {
		if errors.Is(err, ErrConflict) {
			return Contract{}, &ConcurrentModificationError{ContractID: cur.ID, Expected: cur.Revision()}
		}
		return Contract{}, err
	}
	return next, nil
}

func (s *Service) notifyActivation(ctx context.Context, c Contract) {
	if s.notifier == nil || c.Signature == nil {
		return
	}
	ev := billing.ContractActivated{
		ContractID:     c.ID,
		ContractNumber: c.Number,
		ClientID:       c.ClientID,
		PlanID:         c.PlanID,
		Currency:       c.Terms.Currency,
		SignedAt:       c.Signature.SignedAt,
	}
	if c.Terms.MonthlyPrice != nil {
		ev.MonthlyPrice = c.Terms.MonthlyPrice.StringFixed(2)
	}
	if err := s.notifier.ContractActivated(ctx, ev); err != nil {
		// el audit log es la fuente para facturación; la notificación es un atajo
		logger.FromContext(ctx, s.log).Warn("billing notification failed", map[string]any{
			"contract_id": c.ID,
			"error":       err,
		})
	}
}

func transitionReason(req TransitionRequest) string {
	reason := strings.TrimSpace(req.Reason)
	if reason != "" {
		return reason
	}
	return strings.TrimSpace(req.Notes)
}
