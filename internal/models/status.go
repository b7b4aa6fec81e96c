package models

type OrderStatus string

const (
	StatusCreated          OrderStatus = "created"
	StatusScheduled        OrderStatus = "scheduled"
	StatusPaymentConfirmed OrderStatus = "payment_confirmed"
	StatusAwaitingFunds    OrderStatus = "awaiting_funds"
	StatusProcessing       OrderStatus = "processing"
	StatusShipped          OrderStatus = "shipped"
	StatusDelivered        OrderStatus = "delivered"
	StatusFailed           OrderStatus = "failed"
	StatusCancelled        OrderStatus = "cancelled"
)

type FundingStatus string

const (
	FundingNone     FundingStatus = ""
	FundingAwaiting FundingStatus = "awaiting_funds"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentPaid       PaymentStatus = "paid"
	PaymentVoided     PaymentStatus = "voided"
	PaymentRefunded   PaymentStatus = "refunded"
)

type edge struct {
	from OrderStatus
	to   OrderStatus
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusCreated:          {StatusPaymentConfirmed, StatusScheduled, StatusFailed, StatusCancelled},
	StatusScheduled:        {StatusPaymentConfirmed, StatusFailed, StatusCancelled},
	StatusPaymentConfirmed: {StatusProcessing, StatusAwaitingFunds, StatusScheduled, StatusFailed, StatusCancelled},
	StatusAwaitingFunds:    {StatusPaymentConfirmed, StatusFailed, StatusCancelled},
	StatusProcessing:       {StatusShipped, StatusDelivered, StatusFailed, StatusCancelled, StatusPaymentConfirmed},
	StatusShipped:          {StatusDelivered, StatusFailed, StatusCancelled},
	StatusFailed:           {StatusPaymentConfirmed},
}

// Resets used by retry and reconcile. Only an admin may take them.
var adminOnly = map[edge]bool{
	{from: StatusFailed, to: StatusPaymentConfirmed}:     true,
	{from: StatusProcessing, to: StatusPaymentConfirmed}: true,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusScheduled, StatusPaymentConfirmed, StatusAwaitingFunds,
		StatusProcessing, StatusShipped, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusFailed
}

// IsShippedOrBeyond is true once the provider has the goods on their way.
func (s OrderStatus) IsShippedOrBeyond() bool {
	return s == StatusShipped || s == StatusDelivered
}

// CanTransition reports whether the edge from -> to exists for a cause coming from source.
func CanTransition(from, to OrderStatus, source EventSource) bool {
	allowed := false
	for _, next := range transitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if adminOnly[edge{from: from, to: to}] {
		return source == SourceAdmin
	}
	return true
}
