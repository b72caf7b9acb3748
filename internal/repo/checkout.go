package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
)

func (r *GormRepo) CreateSession(ctx context.Context, s *models.CheckoutSession) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *GormRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var s models.CheckoutSession
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *GormRepo) SaveSession(ctx context.Context, s *models.CheckoutSession) error {
	return r.DB.WithContext(ctx).Save(s).Error
}

// ListExpiredSessions returns sessions in state whose wait deadline is before t.
func (r *GormRepo) ListExpiredSessions(ctx context.Context, state models.CheckoutState, t time.Time) ([]models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	err := r.DB.WithContext(ctx).
		Where("state = ? AND wait_deadline IS NOT NULL AND wait_deadline < ?", state, t).
		Order("wait_deadline ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListSessions pages through sessions, newest first. An empty state matches all.
func (r *GormRepo) ListSessions(ctx context.Context, state models.CheckoutState, limit, offset int) ([]models.CheckoutSession, int64, error) {
	scoped := func() *gorm.DB {
		q := r.DB.WithContext(ctx).Model(&models.CheckoutSession{})
		if state != "" {
			q = q.Where("state = ?", state)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []models.CheckoutSession
	if err := scoped().Order("created_at DESC").Limit(limit).Offset(offset).Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}
