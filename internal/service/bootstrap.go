package service

import (
	"context"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EnsureFundingAccount creates the canonical funding account on first start. An existing
// account keeps its balance; only the safety margin follows the configuration.
func EnsureFundingAccount(ctx context.Context, funding repository.FundingStorageRepositoryI, id string, initialBalance, safetyMargin decimal.Decimal) (models.FundingAccount, error) {
	account := models.NewFundingAccount(id, initialBalance, safetyMargin)
	account.UpdatedAt = time.Now()
	stored, err := funding.Ensure(ctx, account)
	if err != nil {
		return stored, err
	}
	logger.Log.Info("funding account ready",
		zap.String("id", stored.ID),
		zap.String("balance", stored.Balance.StringFixed(2)),
		zap.String("safety_margin", stored.SafetyMargin.StringFixed(2)),
	)
	return stored, nil
}

// BootstrapAdmin создает первого администратора, если заданы учетные данные и оператора
// с таким именем еще нет.
func BootstrapAdmin(ctx context.Context, operators repository.OperatorStorageRepositoryI, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := operators.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !customerror.IsNotFound(err) {
		return err
	}

	admin := models.Operator{Username: username, Role: models.RoleAdmin}
	if err := admin.HashPassword(password); err != nil {
		return err
	}
	if _, err := operators.Create(ctx, admin.Username, admin.PasswordHash, admin.Role); err != nil && !customerror.IsConflict(err) {
		return err
	}
	logger.Log.Info("admin operator created", zap.String("username", username))
	return nil
}
