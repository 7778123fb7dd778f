package services

import (
	"context"
	"errors"
	"strings"

	"github.com/openprep/openprep/internal/models"
	pgrepo "github.com/openprep/openprep/internal/repositories/postgres"
	"github.com/openprep/openprep/internal/utils"
)

// ProfileService keeps the parsed resume a user can reuse for resume-based interviews.
type ProfileService interface {
	GetResume(ctx context.Context, userID string) (*models.ResumeProfile, error)
	SaveResume(ctx context.Context, p *models.ResumeProfile) error
}

type profileService struct {
	profiles pgrepo.ResumeProfileRepository
}

func NewProfileService(profiles pgrepo.ResumeProfileRepository) ProfileService {
	return &profileService{profiles: profiles}
}

func (s *profileService) GetResume(ctx context.Context, userID string) (*models.ResumeProfile, error) {
	const op = "ProfileService.GetResume"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "resume profile not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to get resume profile", err)
	}
	return p, nil
}

func (s *profileService) SaveResume(ctx context.Context, p *models.ResumeProfile) error {
	const op = "ProfileService.SaveResume"

	if p == nil || p.UserID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "profile.user_id is required", nil)
	}
	p.Skills = cleanList(p.Skills)
	p.Technologies = cleanList(p.Technologies)
	if len(p.Skills) == 0 || len(p.Technologies) == 0 {
		return utils.E(utils.CodeInvalidArgument, op, "skills and technologies must not be empty", nil)
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to save resume profile", err)
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		k := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
