package memory

import (
	"context"

	"github.com/Bessima/gift-fulfillment/internal/repository"
)

// Storage mirrors repository.Storage for the in-memory backend.
type Storage struct {
	Operators     *OperatorRepo
	Orders        *OrderRepo
	Funding       *FundingRepo
	Contributions *ContributionRepo
	Audit         *AuditRepo
	Jobs          *JobRepo
}

func NewStorage() *Storage {
	return &Storage{
		Operators:     NewOperatorRepo(),
		Orders:        NewOrderRepo(),
		Funding:       NewFundingRepo(),
		Contributions: NewContributionRepo(),
		Audit:         NewAuditRepo(),
		Jobs:          NewJobRepo(),
	}
}

func (s *Storage) Repositories() repository.Repositories {
	return repository.Repositories{
		Operators:     s.Operators,
		Orders:        s.Orders,
		Funding:       s.Funding,
		Contributions: s.Contributions,
		Audit:         s.Audit,
		Jobs:          s.Jobs,
		Health:        s,
	}
}

func (s *Storage) Ping(_ context.Context) error {
	return nil
}

func (s *Storage) Close() error {
	return nil
}
