package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResumeProfileRepository stores what the resume parser extracted for each user.
type ResumeProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.ResumeProfile, error)
	Upsert(ctx context.Context, p *models.ResumeProfile) error
}

type resumeProfileRow struct {
	UserID       string         `gorm:"column:user_id;type:text;primaryKey"`
	Skills       pq.StringArray `gorm:"column:skills;type:text[]"`
	Technologies pq.StringArray `gorm:"column:technologies;type:text[]"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;type:timestamptz"`
}

func (resumeProfileRow) TableName() string { return "resume_profiles" }

type resumeProfileRepo struct {
	db *gorm.DB
}

func NewResumeProfileRepo(db *gorm.DB) ResumeProfileRepository {
	return &resumeProfileRepo{db: db}
}

// AutoMigrate creates the resume_profiles table when it does not exist yet.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&resumeProfileRow{})
}

func (r *resumeProfileRepo) GetByUserID(ctx context.Context, userID string) (*models.ResumeProfile, error) {
	var row resumeProfileRow
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.ResumeProfile{
		UserID:       row.UserID,
		Skills:       []string(row.Skills),
		Technologies: []string(row.Technologies),
	}, nil
}

func (r *resumeProfileRepo) Upsert(ctx context.Context, p *models.ResumeProfile) error {
	row := resumeProfileRow{
		UserID:       p.UserID,
		Skills:       pq.StringArray(p.Skills),
		Technologies: pq.StringArray(p.Technologies),
		UpdatedAt:    time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"skills", "technologies", "updated_at"}),
		}).
		Create(&row).Error
}
