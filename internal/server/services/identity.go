package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/repomanager"
)

// IdentityDetails is the non-secret view of a provisioned identity.
type IdentityDetails struct {
	PublicID   string
	UserName   string
	UserID     string
	Arn        string
	BucketName string
	PolicyName string
	CreatedAt  time.Time
}

type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewIdentityService(db *sql.DB, rm repomanager.RepositoryManager) *IdentityService {
	return &IdentityService{db: db, repomanager: rm}
}

// Details returns common.ErrorNotFound when publicID was never provisioned.
func (s *IdentityService) Details(ctx context.Context, publicID string) (*IdentityDetails, error) {
	identity, err := s.repomanager.Identities(s.db).GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return &IdentityDetails{
		PublicID:   identity.PublicID,
		UserName:   identity.UserName,
		UserID:     identity.UserID,
		Arn:        identity.Arn,
		BucketName: identity.BucketName(),
		PolicyName: identity.PolicyName,
		CreatedAt:  identity.CreatedAt,
	}, nil
}
