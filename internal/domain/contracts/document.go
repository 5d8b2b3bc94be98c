package contracts

import (
	"context"
	"errors"
	"time"

	"isp-contracts/internal/platform/logger"
)

// Document sirve el artefacto vigente. El render solo ocurre cuando el fingerprint
// almacenado ya no coincide con los términos + estado actuales.
func (s *Service) Document(ctx context.Context, id string) (Artifact, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Artifact{}, err
	}
	log := logger.FromContext(ctx, s.log).With(map[string]any{"contract_id": c.ID})
	fp := Fingerprint(c)

	if c.Document != nil && c.Document.Fingerprint == fp {
		b, err := s.loadArtifact(ctx, c.Document.Key)
		if err == nil {
			s.metrics.IncDocumentServed("cached")
			return Artifact{Bytes: b, Fingerprint: fp, ContentType: DocumentContentType}, nil
		}
		log.Warn("stored artifact unreadable", map[string]any{"key": c.Document.Key, "error": err})
		if c.State.Terminal() {
			return Artifact{}, err
		}
	}

	// terminal: el documento está congelado, nunca se re-renderiza
	if c.State.Terminal() {
		if c.Document == nil {
			return Artifact{}, &TerminalStateError{ContractID: c.ID, State: c.State}
		}
		b, err := s.loadArtifact(ctx, c.Document.Key)
		if err != nil {
			return Artifact{}, err
		}
		s.metrics.IncDocumentServed("frozen")
		return Artifact{
			Bytes:       b,
			Fingerprint: c.Document.Fingerprint,
			ContentType: DocumentContentType,
			Stale:       c.Document.Fingerprint != fp,
		}, nil
	}

	v, err, _ := s.renders.Do(c.ID+":"+fp, func() (any, error) {
		return s.regenerate(context.WithoutCancel(ctx), c)
	})
	if err == nil {
		s.metrics.IncDocumentServed("rendered")
		return v.(Artifact), nil
	}

	if c.Document != nil {
		b, lerr := s.loadArtifact(ctx, c.Document.Key)
		if lerr == nil {
			log.Warn("render failed, serving last known good", map[string]any{"error": err})
			s.metrics.IncDocumentServed("last_good")
			return Artifact{
				Bytes:       b,
				Fingerprint: c.Document.Fingerprint,
				ContentType: DocumentContentType,
				Stale:       true,
			}, nil
		}
	}
	return Artifact{}, err
}

// regenerate renderiza, guarda y actualiza la referencia. Perder el CAS no es un error:
// otro escritor ya avanzó el contrato y el artefacto sigue siendo válido para este fingerprint.
func (s *Service) regenerate(ctx context.Context, c Contract) (Artifact, error) {
	ref, b, err := s.renderArtifact(ctx, c)
	if err != nil {
		return Artifact{}, err
	}

	next := c.Clone()
	next.Document = &ref
	next.Version = c.Version + 1
	if err := s.store.CompareAndSwapState(ctx, c.ID, c.Revision(), next); err != nil {
		if !errors.Is(err, ErrConflict) {
			return Artifact{}, err
		}
		logger.FromContext(ctx, s.log).Debug("document ref update lost race", map[string]any{"contract_id": c.ID})
	}

	return Artifact{Bytes: b, Fingerprint: ref.Fingerprint, ContentType: DocumentContentType}, nil
}

// renderArtifact = render + embed (si hay firma) + Put. Las claves son por contenido,
// así que un Put huérfano tras un CAS perdido es inofensivo.
func (s *Service) renderArtifact(ctx context.Context, c Contract) (DocumentRef, []byte, error) {
	start := time.Now()
	doc, err := s.renderer.Render(c)
	if err != nil {
		return DocumentRef{}, nil, err
	}
	if sig := c.Signature; sig != nil {
		doc, err = s.embedder.Embed(doc, NormalizedSignature{
			SignerName:       sig.SignerName,
			SignerIDDocument: sig.SignerIDDocument,
			PNG:              sig.Image,
		}, SignerMetadata{
			Name:       sig.SignerName,
			IDDocument: sig.SignerIDDocument,
			SignedAt:   sig.SignedAt,
			Place:      sig.Place,
		})
		if err != nil {
			return DocumentRef{}, nil, err
		}
	}
	s.metrics.ObserveRender(time.Since(start))

	fp := Fingerprint(c)
	key := ArtifactKey(c.ID, fp)
	if err := s.artifacts.Put(ctx, key, doc, DocumentContentType); err != nil {
		return DocumentRef{}, nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, doc); err != nil {
			logger.FromContext(ctx, s.log).Warn("document cache set failed", map[string]any{"key": key, "error": err})
		}
	}

	return DocumentRef{
		Fingerprint: fp,
		Key:         key,
		Size:        int64(len(doc)),
		RenderedAt:  s.clock(),
	}, doc, nil
}

// loadArtifact lee primero de la cache y cae al ArtifactStore.
func (s *Service) loadArtifact(ctx context.Context, key string) ([]byte, error) {
	if s.cache != nil {
		b, ok, err := s.cache.Get(ctx, key)
		if err == nil && ok {
			return b, nil
		}
		if err != nil {
			logger.FromContext(ctx, s.log).Warn("document cache get failed", map[string]any{"key": key, "error": err})
		}
	}

	b, err := s.artifacts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, b)
	}
	return b, nil
}
