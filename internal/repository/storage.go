package repository

import (
	"context"

	"github.com/Bessima/gift-fulfillment/internal/config/db"
)

// Storage объединяет репозитории, работающие с одной базой данных.
type Storage struct {
	DB            *db.DB
	Operators     *OperatorRepository
	Orders        *OrderRepository
	Funding       *FundingRepository
	Contributions *ContributionRepository
	Audit         *AuditRepository
	Jobs          *JobRepository
}

func NewStorage(dbObj *db.DB) *Storage {
	return &Storage{
		DB:            dbObj,
		Operators:     NewOperatorRepository(dbObj),
		Orders:        NewOrderRepository(dbObj),
		Funding:       NewFundingRepository(dbObj),
		Contributions: NewContributionRepository(dbObj),
		Audit:         NewAuditRepository(dbObj),
		Jobs:          NewJobRepository(dbObj),
	}
}

func (storage *Storage) Ping(ctx context.Context) error {
	return storage.DB.Ping(ctx)
}

func (storage *Storage) Close() error {
	storage.DB.Close()
	return nil
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Repositories is the set of storage ports the services depend on. Both the PostgreSQL
// and the in-memory backends provide one.
type Repositories struct {
	Operators     OperatorStorageRepositoryI
	Orders        OrderStorageRepositoryI
	Funding       FundingStorageRepositoryI
	Contributions ContributionStorageRepositoryI
	Audit         AuditStorageRepositoryI
	Jobs          JobStorageRepositoryI
	Health        Pinger
}

func (storage *Storage) Repositories() Repositories {
	return Repositories{
		Operators:     storage.Operators,
		Orders:        storage.Orders,
		Funding:       storage.Funding,
		Contributions: storage.Contributions,
		Audit:         storage.Audit,
		Jobs:          storage.Jobs,
		Health:        storage,
	}
}
