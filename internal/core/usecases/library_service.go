package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
)

// LibraryService lists libraries, falling back to the last cached copy when
// the backend is unreachable.
type LibraryService struct {
	backend ports.BookingBackend
	cache   *PersistentCache
	logger  *slog.Logger
}

// NewLibraryService creates a new LibraryService.
func NewLibraryService(backend ports.BookingBackend, cache *PersistentCache) *LibraryService {
	return &LibraryService{backend: backend, cache: cache, logger: slog.Default().With("component", "library_service")}
}

// List returns libraries, optionally only active ones.
func (s *LibraryService) List(ctx context.Context, activeOnly bool) ([]domain.Library, error) {
	cacheKey := fmt.Sprintf("libraries:active:%t", activeOnly)

	libs, err := s.backend.FetchLibraries(ctx, activeOnly)
	if err != nil {
		var cached []domain.Library
		if s.cache.Get(ctx, cacheKey, &cached) {
			s.logger.Warn("serving cached libraries", "error", err, "count", len(cached))
			return cached, nil
		}
		return nil, fmt.Errorf("fetch libraries: %w", err)
	}

	if err := s.cache.Set(ctx, cacheKey, libs); err != nil {
		s.logger.Warn("caching libraries failed", "error", err)
	}
	return libs, nil
}

// Get returns one library by id.
func (s *LibraryService) Get(ctx context.Context, id string) (*domain.Library, error) {
	libs, err := s.List(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range libs {
		if libs[i].ID == id {
			return &libs[i], nil
		}
	}
	return nil, fmt.Errorf("library %q: %w", id, domain.ErrKeyNotFound)
}
