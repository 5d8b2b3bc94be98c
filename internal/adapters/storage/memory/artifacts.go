package memory

import (
	"context"
	"fmt"
	"sync"

	"isp-contracts/internal/domain/contracts"
)

// ArtifactStore guarda los documentos en memoria (dev/tests).
type ArtifactStore struct {
	mu    sync.RWMutex
	byKey map[string][]byte
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{byKey: make(map[string][]byte)}
}

func (s *ArtifactStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byKey[key] = append([]byte(nil), data...)
	return nil
}

func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, contracts.ErrArtifactNotFound)
	}
	return append([]byte(nil), b...), nil
}

// Len es útil en tests para verificar cuántos renders se persistieron.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}
