package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bessima/gift-fulfillment/internal/config/db"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/retry"
	"github.com/jackc/pgx/v5"
)

type OperatorRepository struct {
	db *db.DB
}

type OperatorStorageRepositoryI interface {
	Create(ctx context.Context, username, passwordHash string, role models.Role) (*models.Operator, error)
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
	GetByID(ctx context.Context, id int) (*models.Operator, error)
}

func NewOperatorRepository(dbObj *db.DB) *OperatorRepository {
	return &OperatorRepository{db: dbObj}
}

func (repository *OperatorRepository) Create(ctx context.Context, username, passwordHash string, role models.Role) (*models.Operator, error) {
	query := `INSERT INTO operators (name, password, role) VALUES ($1, $2, $3) RETURNING id, name, password, role`

	return retry.DoRetryWithResult(ctx, func() (*models.Operator, error) {
		row := repository.db.Pool.QueryRow(ctx, query, username, passwordHash, role)
		operator := models.Operator{}
		err := row.Scan(&operator.ID, &operator.Username, &operator.PasswordHash, &operator.Role)
		if err != nil {
			return nil, pgError(err, fmt.Sprintf("operator %s already exists", username))
		}
		return &operator, nil
	})
}

func (repository *OperatorRepository) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	query := `SELECT id, name, password, role FROM operators WHERE name = $1`
	return repository.getOne(ctx, query, username)
}

func (repository *OperatorRepository) GetByID(ctx context.Context, id int) (*models.Operator, error) {
	query := `SELECT id, name, password, role FROM operators WHERE id = $1`
	return repository.getOne(ctx, query, id)
}

func (repository *OperatorRepository) getOne(ctx context.Context, query string, arg any) (*models.Operator, error) {
	return retry.DoRetryWithResult(ctx, func() (*models.Operator, error) {
		row := repository.db.Pool.QueryRow(ctx, query, arg)

		elem := models.Operator{}
		err := row.Scan(&elem.ID, &elem.Username, &elem.PasswordHash, &elem.Role)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customerror.NewNotFoundError(fmt.Sprintf("operator %v", arg))
		}
		if err != nil {
			return nil, err
		}
		return &elem, nil
	})
}
