package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/config/db"
	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/retry"
)

type ContributionRepository struct {
	db *db.DB
}

type ContributionStorageRepositoryI interface {
	Save(ctx context.Context, contribution *models.Contribution) error
	ListByGroupGift(ctx context.Context, groupGiftID string) ([]models.Contribution, error)
	UpdateStatus(ctx context.Context, id string, status models.ContributionStatus, errMessage string, at time.Time) error
}

func NewContributionRepository(dbObj *db.DB) *ContributionRepository {
	return &ContributionRepository{db: dbObj}
}

func (repository *ContributionRepository) Save(ctx context.Context, contribution *models.Contribution) error {
	query := `INSERT INTO contributions (id, group_gift_id, contributor_id, payment_ref, amount, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	return retry.DoRetry(ctx, func() error {
		_, err := repository.db.Pool.Exec(ctx, query,
			contribution.ID, contribution.GroupGiftID, contribution.ContributorID, contribution.PaymentRef,
			models.ToCents(contribution.Amount), contribution.Status, contribution.Error,
			contribution.CreatedAt, contribution.UpdatedAt,
		)
		return pgError(err, fmt.Sprintf("contribution with payment_ref %s already exists", contribution.PaymentRef))
	})
}

func (repository *ContributionRepository) ListByGroupGift(ctx context.Context, groupGiftID string) ([]models.Contribution, error) {
	query := `SELECT id, group_gift_id, contributor_id, payment_ref, amount, status, error, created_at, updated_at
		FROM contributions WHERE group_gift_id = $1 ORDER BY created_at, id`

	return retry.DoRetryWithResult(ctx, func() ([]models.Contribution, error) {
		rows, err := repository.db.Pool.Query(ctx, query, groupGiftID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		contributions := []models.Contribution{}
		for rows.Next() {
			var contribution models.Contribution
			var amountInCents int64
			err = rows.Scan(
				&contribution.ID, &contribution.GroupGiftID, &contribution.ContributorID, &contribution.PaymentRef,
				&amountInCents, &contribution.Status, &contribution.Error, &contribution.CreatedAt, &contribution.UpdatedAt,
			)
			if err != nil {
				return nil, err
			}
			contribution.Amount = models.FromCents(amountInCents)
			contributions = append(contributions, contribution)
		}

		return contributions, rows.Err()
	})
}

func (repository *ContributionRepository) UpdateStatus(
	ctx context.Context, id string, status models.ContributionStatus, errMessage string, at time.Time,
) error {
	query := `UPDATE contributions SET status = $1, error = $2, updated_at = $3 WHERE id = $4`

	return retry.DoRetry(ctx, func() error {
		row, err := repository.db.Pool.Exec(ctx, query, status, errMessage, at, id)
		if err != nil {
			return err
		}
		if row.RowsAffected() == 0 {
			return customerror.NewNotFoundError(fmt.Sprintf("contribution %s", id))
		}
		return nil
	})
}
