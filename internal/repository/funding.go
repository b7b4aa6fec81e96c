package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/config/db"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/retry"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type FundingRepository struct {
	db *db.DB
}

type FundingStorageRepositoryI interface {
	Get(ctx context.Context, id string) (models.FundingAccount, error)
	Ensure(ctx context.Context, account models.FundingAccount) (models.FundingAccount, error)
	CompareAndSetBalance(ctx context.Context, id string, expectedVersion int64, balance decimal.Decimal, at time.Time) (models.FundingAccount, error)
}

func NewFundingRepository(dbObj *db.DB) *FundingRepository {
	return &FundingRepository{db: dbObj}
}

const fundingColumns = `id, balance, safety_margin, version, updated_at`

func scanFunding(row pgx.Row) (models.FundingAccount, error) {
	account := models.FundingAccount{}
	var balanceInCents, marginInCents int64
	err := row.Scan(&account.ID, &balanceInCents, &marginInCents, &account.Version, &account.UpdatedAt)
	if err != nil {
		return account, err
	}
	account.Balance = models.FromCents(balanceInCents)
	account.SafetyMargin = models.FromCents(marginInCents)
	return account, nil
}

func (repository *FundingRepository) Get(ctx context.Context, id string) (models.FundingAccount, error) {
	query := `SELECT ` + fundingColumns + ` FROM funding_accounts WHERE id = $1`
	return retry.DoRetryWithResult(ctx, func() (models.FundingAccount, error) {
		account, err := scanFunding(repository.db.Pool.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return account, customerror.NewNotFoundError(fmt.Sprintf("funding account %s", id))
		}
		return account, err
	})
}

// Ensure создает счет, если его еще нет. Страховой резерв всегда берется из конфигурации.
func (repository *FundingRepository) Ensure(ctx context.Context, account models.FundingAccount) (models.FundingAccount, error) {
	query := `INSERT INTO funding_accounts (id, balance, safety_margin, version, updated_at) VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (id) DO UPDATE SET safety_margin = EXCLUDED.safety_margin
		RETURNING ` + fundingColumns

	return retry.DoRetryWithResult(ctx, func() (models.FundingAccount, error) {
		row := repository.db.Pool.QueryRow(ctx, query,
			account.ID, models.ToCents(account.Balance), models.ToCents(account.SafetyMargin), account.UpdatedAt)
		return scanFunding(row)
	})
}

func (repository *FundingRepository) CompareAndSetBalance(
	ctx context.Context, id string, expectedVersion int64, balance decimal.Decimal, at time.Time,
) (models.FundingAccount, error) {
	query := `UPDATE funding_accounts SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING ` + fundingColumns

	return retry.DoRetryWithResult(ctx, func() (models.FundingAccount, error) {
		account, err := scanFunding(repository.db.Pool.QueryRow(ctx, query, models.ToCents(balance), at, id, expectedVersion))
		if errors.Is(err, pgx.ErrNoRows) {
			return account, ErrVersionMismatch
		}
		return account, err
	})
}
