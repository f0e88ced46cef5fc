package scripturepath

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// StudyRepository persists whole studies. Implementations return
// ErrStudyNotFound for unknown ids and never hand out shared state: callers
// may mutate what Get returns.
type StudyRepository interface {
	Get(ctx context.Context, id string) (*Study, error)
	Put(ctx context.Context, study *Study) error
	Delete(ctx context.Context, id string) error
	// ListByOwner returns the owner's studies, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Study, error)
	// ListPublic returns public studies by descending score. limit <= 0
	// means no limit.
	ListPublic(ctx context.Context, limit int) ([]*Study, error)
}

// Repository kinds accepted by OpenRepository.
const (
	RepositoryMemory = "memory"
	RepositorySQLite = "sqlite"
	RepositoryRedis  = "redis"
)

// OpenRepository builds the repository named by kind. The returned close
// function releases its connections.
func OpenRepository(ctx context.Context, kind, sqlitePath, redisAddr string) (StudyRepository, func() error, error) {
	switch kind {
	case RepositoryMemory:
		return NewMemoryRepository(), func() error { return nil }, nil
	case RepositorySQLite:
		db, err := OpenStudyDB(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case RepositoryRedis:
		r, err := NewRedisRepository(ctx, redisAddr, "scripturepath:")
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown repository %q", kind)
}

// MemoryRepository keeps studies in process memory
type MemoryRepository struct {
	mu      sync.RWMutex
	studies map[string]*Study
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{studies: make(map[string]*Study)}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Study, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.studies[id]
	if !ok {
		return nil, ErrStudyNotFound
	}
	return s.Copy(), nil
}

func (r *MemoryRepository) Put(ctx context.Context, study *Study) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.studies[study.ID] = study.Copy()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.studies[id]; !ok {
		return ErrStudyNotFound
	}
	delete(r.studies, id)
	return nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Study, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Study
	for _, s := range r.studies {
		if s.Metadata.OwnerID == ownerID {
			out = append(out, s.Copy())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepository) ListPublic(ctx context.Context, limit int) ([]*Study, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Study
	for _, s := range r.studies {
		if s.Metadata.IsPublic {
			out = append(out, s.Copy())
		}
	}
	sortByScore(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(studies []*Study) {
	sort.SliceStable(studies, func(i, j int) bool {
		a, b := studies[i].Metadata.CreatedAt, studies[j].Metadata.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return studies[i].ID < studies[j].ID
	})
}

func sortByScore(studies []*Study) {
	sort.SliceStable(studies, func(i, j int) bool {
		a, b := studies[i].Metadata.Stats.Score(), studies[j].Metadata.Stats.Score()
		if a != b {
			return a > b
		}
		ca, cb := studies[i].Metadata.CreatedAt, studies[j].Metadata.CreatedAt
		if !ca.Equal(cb) {
			return ca.After(cb)
		}
		return studies[i].ID < studies[j].ID
	})
}
