// Package persistence implements C5/C6: the order and error repositories,
// with an in-memory reference backend and Spanner/Postgres alternates.
package persistence

import (
	"time"

	"github.com/arkbound/orderfeed/internal/feed/domain"
)

// OrderFilter combines with AND semantics; a zero field matches all.
type OrderFilter struct {
	PartnerID  domain.PartnerID
	CustomerID string
	ProductID  string
	FromDate   time.Time
	ToDate     time.Time
	MinAmount  *float64
	MaxAmount  *float64
}

// ErrorFilter combines with AND semantics; a zero field matches all.
type ErrorFilter struct {
	PartnerID domain.PartnerID
	ErrorCode domain.ErrorCode
	FromDate  time.Time
	ToDate    time.Time
}

// SortField is one of the four columns FindMany can order by.
type SortField string

const (
	SortProcessedAt     SortField = "processedAt"
	SortTransactionTime SortField = "transactionTime"
	SortGrossAmount     SortField = "grossAmount"
	SortSequenceNumber  SortField = "sequenceNumber"
	SortTimestamp       SortField = "timestamp" // error events only
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort is the requested ordering; the zero value means "apply the
// caller's default" (processedAt desc for orders, timestamp desc for
// errors) rather than an explicit choice.
type Sort struct {
	Field     SortField
	Direction SortDirection
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is applied after filtering and sorting.
type Pagination struct {
	Page     int
	PageSize int
}

// Normalize clamps page/pageSize to their documented bounds.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Page is the paginated result envelope returned by FindMany.
type Page[T any] struct {
	Data       []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
	HasMore    bool
}

// OrderStatistics is computed over a filter-matched subset of orders.
type OrderStatistics struct {
	TotalOrders      int
	OrdersByPartner  map[domain.PartnerID]int
	TotalGrossAmount float64
	TotalTaxAmount   float64
	TotalNetAmount   float64
	AverageOrderValue float64
	HighestSequence  map[domain.PartnerID]int64
}

// ErrorStatistics is computed over a filter-matched subset of errors.
type ErrorStatistics struct {
	TotalErrors     int
	ErrorsByPartner map[domain.PartnerID]int
	ErrorsByCode    map[domain.ErrorCode]int
	Last24Hours     int
}

// zeroOrderStatistics seeds the closed partner set with zero counts, so
// callers never have to check for a missing key.
func zeroOrderStatistics() OrderStatistics {
	s := OrderStatistics{
		OrdersByPartner: make(map[domain.PartnerID]int, len(domain.AllPartners)),
		HighestSequence: make(map[domain.PartnerID]int64, len(domain.AllPartners)),
	}
	for _, p := range domain.AllPartners {
		s.OrdersByPartner[p] = 0
		s.HighestSequence[p] = 0
	}
	return s
}

func zeroErrorStatistics() ErrorStatistics {
	s := ErrorStatistics{
		ErrorsByPartner: make(map[domain.PartnerID]int, len(domain.AllPartners)),
		ErrorsByCode:    make(map[domain.ErrorCode]int),
	}
	for _, p := range domain.AllPartners {
		s.ErrorsByPartner[p] = 0
	}
	return s
}
