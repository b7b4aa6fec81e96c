package repository

import (
	"context"
	"fmt"

	"github.com/Bessima/gift-fulfillment/internal/config/db"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/retry"
)

type AuditRepository struct {
	db *db.DB
}

type AuditStorageRepositoryI interface {
	Record(ctx context.Context, record models.AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error)
}

func NewAuditRepository(dbObj *db.DB) *AuditRepository {
	return &AuditRepository{db: dbObj}
}

func (repository *AuditRepository) Record(ctx context.Context, record models.AuditRecord) error {
	query := `INSERT INTO audit_log (id, actor, action, target, result, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	return retry.DoRetry(ctx, func() error {
		row, err := repository.db.Pool.Exec(ctx, query,
			record.ID, record.Actor, record.Action, record.Target, record.Result, record.Detail, record.CreatedAt)
		if err != nil {
			return pgError(err, fmt.Sprintf("audit record %s already exists", record.ID))
		}
		if row.RowsAffected() == 0 {
			return fmt.Errorf("audit record %s was not saved", record.ID)
		}
		return nil
	})
}

func (repository *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	query := `SELECT id, actor, action, target, result, detail, created_at FROM audit_log ORDER BY created_at DESC LIMIT $1`
	return retry.DoRetryWithResult(ctx, func() ([]models.AuditRecord, error) {
		rows, err := repository.db.Pool.Query(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		records := []models.AuditRecord{}
		for rows.Next() {
			var record models.AuditRecord
			err = rows.Scan(&record.ID, &record.Actor, &record.Action, &record.Target, &record.Result, &record.Detail, &record.CreatedAt)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}

		return records, rows.Err()
	})
}
