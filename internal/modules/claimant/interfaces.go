package claimant

import (
	"context"

	"plumberleads/internal/domain"
)

type claimantStore interface {
	GetByID(ctx context.Context, id string) (*domain.Claimant, error)
	Upsert(ctx context.Context, c *domain.Claimant) error
	SetVerified(ctx context.Context, id string, verified bool) error
}
