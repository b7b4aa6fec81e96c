// Package memory keeps the repositories in process memory. It is used when no database is
// configured and by service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	_ repository.OrderStorageRepositoryI        = (*OrderRepo)(nil)
	_ repository.OperatorStorageRepositoryI     = (*OperatorRepo)(nil)
	_ repository.FundingStorageRepositoryI      = (*FundingRepo)(nil)
	_ repository.ContributionStorageRepositoryI = (*ContributionRepo)(nil)
	_ repository.AuditStorageRepositoryI        = (*AuditRepo)(nil)
	_ repository.JobStorageRepositoryI          = (*JobRepo)(nil)
)

type OrderRepo struct {
	mu sync.RWMutex
	m  map[string]*models.Order
}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{m: make(map[string]*models.Order)}
}

func (r *OrderRepo) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[order.ID]; ok {
		return customerror.NewUniqueViolationError(fmt.Sprintf("order %s already exists", order.ID))
	}
	for _, existing := range r.m {
		if existing.PaymentRef == order.PaymentRef {
			return customerror.NewUniqueViolationError(fmt.Sprintf("order with payment_ref %s already exists", order.PaymentRef))
		}
	}
	r.m[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return nil, customerror.NewNotFoundError(fmt.Sprintf("order %s", id))
	}
	return o.Clone(), nil
}

func (r *OrderRepo) GetByPaymentRef(_ context.Context, paymentRef string) (*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.PaymentRef == paymentRef },
		fmt.Sprintf("order with payment_ref %s", paymentRef))
}

func (r *OrderRepo) GetByFulfillmentRequestID(_ context.Context, requestID string) (*models.Order, error) {
	return r.find(func(o *models.Order) bool { return requestID != "" && o.FulfillmentRequestID == requestID },
		fmt.Sprintf("order with fulfillment request %s", requestID))
}

func (r *OrderRepo) find(match func(o *models.Order) bool, what string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.m {
		if match(o) {
			return o.Clone(), nil
		}
	}
	return nil, customerror.NewNotFoundError(what)
}

func (r *OrderRepo) Update(_ context.Context, id string, fn func(order *models.Order) error) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.m[id]
	if !ok {
		return nil, customerror.NewNotFoundError(fmt.Sprintf("order %s", id))
	}

	order := stored.Clone()
	if err := fn(order); err != nil {
		return nil, err
	}
	if order.FulfillmentRequestID != "" {
		for otherID, other := range r.m {
			if otherID != id && other.FulfillmentRequestID == order.FulfillmentRequestID {
				return nil, customerror.NewUniqueViolationError(
					fmt.Sprintf("fulfillment request %s is attached to another order", order.FulfillmentRequestID))
			}
		}
	}

	r.m[id] = order
	return order.Clone(), nil
}

func (r *OrderRepo) ListByStatus(_ context.Context, statuses []models.OrderStatus, limit int) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[models.OrderStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	all := make([]models.Order, 0)
	for _, o := range r.m {
		if wanted[o.Status] {
			c := o.Clone()
			c.Timeline = nil
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *OrderRepo) CountByStatus(_ context.Context, status models.OrderStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, o := range r.m {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

type OperatorRepo struct {
	mu     sync.RWMutex
	m      map[int]*models.Operator
	nextID int
}

func NewOperatorRepo() *OperatorRepo {
	return &OperatorRepo{m: make(map[int]*models.Operator)}
}

func (r *OperatorRepo) Create(_ context.Context, username, passwordHash string, role models.Role) (*models.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.m {
		if o.Username == username {
			return nil, customerror.NewUniqueViolationError(fmt.Sprintf("operator %s already exists", username))
		}
	}
	r.nextID++
	operator := &models.Operator{ID: r.nextID, Username: username, PasswordHash: passwordHash, Role: role}
	r.m[operator.ID] = operator
	c := *operator
	return &c, nil
}

func (r *OperatorRepo) GetByUsername(_ context.Context, username string) (*models.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.m {
		if o.Username == username {
			c := *o
			return &c, nil
		}
	}
	return nil, customerror.NewNotFoundError(fmt.Sprintf("operator %s", username))
}

func (r *OperatorRepo) GetByID(_ context.Context, id int) (*models.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return nil, customerror.NewNotFoundError(fmt.Sprintf("operator %d", id))
	}
	c := *o
	return &c, nil
}

type FundingRepo struct {
	mu sync.Mutex
	m  map[string]models.FundingAccount
}

func NewFundingRepo() *FundingRepo {
	return &FundingRepo{m: make(map[string]models.FundingAccount)}
}

func (r *FundingRepo) Get(_ context.Context, id string) (models.FundingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.m[id]
	if !ok {
		return models.FundingAccount{}, customerror.NewNotFoundError(fmt.Sprintf("funding account %s", id))
	}
	return account, nil
}

func (r *FundingRepo) Ensure(_ context.Context, account models.FundingAccount) (models.FundingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.m[account.ID]; ok {
		existing.SafetyMargin = account.SafetyMargin
		r.m[account.ID] = existing
		return existing, nil
	}
	r.m[account.ID] = account
	return account, nil
}

func (r *FundingRepo) CompareAndSetBalance(
	_ context.Context, id string, expectedVersion int64, balance decimal.Decimal, at time.Time,
) (models.FundingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.m[id]
	if !ok || account.Version != expectedVersion {
		return models.FundingAccount{}, repository.ErrVersionMismatch
	}
	account.Balance = balance
	account.Version++
	account.UpdatedAt = at
	r.m[id] = account
	return account, nil
}

type ContributionRepo struct {
	mu sync.RWMutex
	m  map[string]*models.Contribution
	// insertion order keeps listings stable
	order []string
}

func NewContributionRepo() *ContributionRepo {
	return &ContributionRepo{m: make(map[string]*models.Contribution)}
}

func (r *ContributionRepo) Save(_ context.Context, contribution *models.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.m {
		if c.PaymentRef == contribution.PaymentRef {
			return customerror.NewUniqueViolationError(
				fmt.Sprintf("contribution with payment_ref %s already exists", contribution.PaymentRef))
		}
	}
	c := *contribution
	r.m[c.ID] = &c
	r.order = append(r.order, c.ID)
	return nil
}

func (r *ContributionRepo) ListByGroupGift(_ context.Context, groupGiftID string) ([]models.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := []models.Contribution{}
	for _, id := range r.order {
		if c := r.m[id]; c.GroupGiftID == groupGiftID {
			list = append(list, *c)
		}
	}
	return list, nil
}

func (r *ContributionRepo) UpdateStatus(
	_ context.Context, id string, status models.ContributionStatus, errMessage string, at time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return customerror.NewNotFoundError(fmt.Sprintf("contribution %s", id))
	}
	c.Status = status
	c.Error = errMessage
	c.UpdatedAt = at
	return nil
}

type AuditRepo struct {
	mu      sync.RWMutex
	records []models.AuditRecord
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Record(_ context.Context, record models.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *AuditRepo) ListRecent(_ context.Context, limit int) ([]models.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]models.AuditRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0 && (limit <= 0 || len(list) < limit); i-- {
		list = append(list, r.records[i])
	}
	return list, nil
}
