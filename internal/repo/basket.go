package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/models"
)

// LoadBasket returns the last saved basket of owner, or an empty one.
func (r *GormRepo) LoadBasket(ctx context.Context, owner string) (basket.Basket, error) {
	var snap models.BasketSnapshot
	err := r.DB.WithContext(ctx).Where("owner = ?", owner).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return basket.Basket{}, nil
	}
	if err != nil {
		return basket.Basket{}, err
	}

	var b basket.Basket
	if err := json.Unmarshal([]byte(snap.Payload), &b); err != nil {
		return basket.Basket{}, fmt.Errorf("decode basket snapshot: %w", err)
	}
	return b, nil
}

func (r *GormRepo) SaveBasket(ctx context.Context, owner string, b basket.Basket) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode basket snapshot: %w", err)
	}

	snap := models.BasketSnapshot{Owner: owner, Payload: string(payload)}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&snap).Error
}
