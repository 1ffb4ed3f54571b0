// Package identities persists provisioned cloud identities.
package identities

import (
	"context"

	"github.com/dmitrijs2005/gophbucket/internal/server/models"
)

type Repository interface {
	// Create inserts a new identity. A duplicate public id or any other
	// unique column yields common.ErrPersistenceConflict.
	Create(ctx context.Context, identity *models.Identity) error
	// GetByPublicID returns common.ErrorNotFound when no row exists.
	GetByPublicID(ctx context.Context, publicID string) (*models.Identity, error)
}
