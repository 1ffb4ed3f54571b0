package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/dmitrijs2005/gophbucket/internal/dbx"
	"github.com/dmitrijs2005/gophbucket/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) error {
	query := `INSERT INTO aws_details (public_id, aws_create_user_request_id, aws_user_id, aws_user_name,
			aws_access_key_id, aws_secret_access_key, aws_policy_name, aws_arn, aws_create_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		identity.PublicID,
		identity.CreateRequestID,
		identity.UserID,
		identity.UserName,
		identity.EncryptedAccessKeyID,
		identity.EncryptedSecretAccessKey,
		identity.PolicyName,
		identity.Arn,
		identity.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", common.ErrPersistenceConflict, pgErr.ConstraintName)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByPublicID(ctx context.Context, publicID string) (*models.Identity, error) {
	query := `SELECT public_id, aws_create_user_request_id, aws_user_id, aws_user_name,
			aws_access_key_id, aws_secret_access_key, aws_policy_name, aws_arn, aws_create_date
		FROM aws_details WHERE public_id = $1`

	var (
		item      models.Identity
		requestID sql.NullString
		policy    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, publicID).Scan(
		&item.PublicID,
		&requestID,
		&item.UserID,
		&item.UserName,
		&item.EncryptedAccessKeyID,
		&item.EncryptedSecretAccessKey,
		&policy,
		&item.Arn,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	item.CreateRequestID = requestID.String
	item.PolicyName = policy.String

	return &item, nil
}
