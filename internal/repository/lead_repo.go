package repository

import (
	"context"
	"errors"
	"time"

	"plumberleads/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LeadFilter struct {
	Status          domain.LeadStatus
	ServiceCategory string
	City            string
	State           string
	ZipCode         string
}

type LeadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) Create(ctx context.Context, l *domain.Lead) error {
	return conn(ctx, r.db).Create(l).Error
}

func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	var l domain.Lead
	if err := conn(ctx, r.db).Where("id = ?", id).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLeadNotFound
		}
		return nil, err
	}
	return &l, nil
}

// GetForUpdate locks the row on databases that support row locks.
func (r *LeadRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	var l domain.Lead
	err := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLeadNotFound
		}
		return nil, err
	}
	return &l, nil
}

// List returns one page newest first plus the total match count.
func (r *LeadRepository) List(ctx context.Context, f LeadFilter, limit, offset int) ([]domain.Lead, int64, error) {
	q := conn(ctx, r.db).Model(&domain.Lead{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ServiceCategory != "" {
		q = q.Where("service_category = ?", f.ServiceCategory)
	}
	if f.City != "" {
		q = q.Where("LOWER(city) = LOWER(?)", f.City)
	}
	if f.State != "" {
		q = q.Where("LOWER(state) = LOWER(?)", f.State)
	}
	if f.ZipCode != "" {
		q = q.Where("zip_code = ?", f.ZipCode)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var leads []domain.Lead
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&leads).Error; err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func (r *LeadRepository) ListByStatus(ctx context.Context, status domain.LeadStatus) ([]domain.Lead, error) {
	var leads []domain.Lead
	if err := conn(ctx, r.db).Where("status = ?", status).Order("reserved_at ASC").Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

// CompareAndSwap persists the state fields of l only if the stored row still has
// the expected status and l.Version. On success l.Version is advanced.
func (r *LeadRepository) CompareAndSwap(ctx context.Context, l *domain.Lead, expected domain.LeadStatus, now time.Time) error {
	res := conn(ctx, r.db).Model(&domain.Lead{}).
		Where("id = ? AND status = ? AND version = ?", l.ID, expected, l.Version).
		Updates(map[string]interface{}{
			"status":      l.Status,
			"reserved_by": l.ReservedBy,
			"reserved_at": l.ReservedAt,
			"claimed_by":  l.ClaimedBy,
			"claimed_at":  l.ClaimedAt,
			"price_cents": l.PriceCents,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStaleWrite
	}
	l.Version++
	l.UpdatedAt = now
	return nil
}

// UpdateLocation stores geocoded coordinates. It does not touch version since
// coordinates take no part in the state machine.
func (r *LeadRepository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	return conn(ctx, r.db).Model(&domain.Lead{}).Where("id = ?", id).
		Updates(map[string]interface{}{"latitude": lat, "longitude": lng}).Error
}
