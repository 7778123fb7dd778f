package memory

import (
	"context"
	"sync"

	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/utils"
)

type ResumeProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]models.ResumeProfile
}

func NewResumeProfileRepo() *ResumeProfileRepo {
	return &ResumeProfileRepo{profiles: make(map[string]models.ResumeProfile)}
}

func (r *ResumeProfileRepo) GetByUserID(ctx context.Context, userID string) (*models.ResumeProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &p, nil
}

func (r *ResumeProfileRepo) Upsert(ctx context.Context, p *models.ResumeProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UserID] = *p
	return nil
}
