package repository

import (
	"context"

	"plumberleads/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LeadHistoryRepository only appends and reads.
type LeadHistoryRepository struct {
	db *gorm.DB
}

func NewLeadHistoryRepository(db *gorm.DB) *LeadHistoryRepository {
	return &LeadHistoryRepository{db: db}
}

func (r *LeadHistoryRepository) Append(ctx context.Context, h *domain.LeadHistory) error {
	return conn(ctx, r.db).Create(h).Error
}

func (r *LeadHistoryRepository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]domain.LeadHistory, error) {
	var out []domain.LeadHistory
	if err := conn(ctx, r.db).Where("lead_id = ?", leadID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LeadHistoryRepository) CountByType(ctx context.Context, leadID uuid.UUID, change domain.ChangeType) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&domain.LeadHistory{}).
		Where("lead_id = ? AND change_type = ?", leadID, change).
		Count(&n).Error
	return n, err
}
