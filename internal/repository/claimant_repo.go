package repository

import (
	"context"
	"errors"

	"plumberleads/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimantRepository struct {
	db *gorm.DB
}

func NewClaimantRepository(db *gorm.DB) *ClaimantRepository {
	return &ClaimantRepository{db: db}
}

func (r *ClaimantRepository) GetByID(ctx context.Context, id string) (*domain.Claimant, error) {
	var c domain.Claimant
	if err := conn(ctx, r.db).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrClaimantNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Upsert writes the profile fields. Verified is left untouched on conflict.
func (r *ClaimantRepository) Upsert(ctx context.Context, c *domain.Claimant) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"business_name", "address", "city", "state", "zip_code",
			"latitude", "longitude", "service_radius_miles", "updated_at",
		}),
	}).Create(c).Error
}

func (r *ClaimantRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	res := conn(ctx, r.db).Model(&domain.Claimant{}).Where("id = ?", id).Update("verified", verified)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrClaimantNotFound
	}
	return nil
}

func (r *ClaimantRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	return conn(ctx, r.db).Model(&domain.Claimant{}).Where("id = ?", id).
		Updates(map[string]interface{}{"latitude": lat, "longitude": lng}).Error
}
