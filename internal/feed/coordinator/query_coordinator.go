package coordinator

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
)

// QueryCoordinator is C8: a thin, read-only façade over the order and
// error repositories that centralizes query-parameter parsing, the
// page-size ceiling, and the default-sort policy so no caller has to
// duplicate them.
type QueryCoordinator struct {
	orders persistence.OrderRepository
	errors persistence.ErrorRepository
}

func NewQueryCoordinator(orders persistence.OrderRepository, errors persistence.ErrorRepository) *QueryCoordinator {
	return &QueryCoordinator{orders: orders, errors: errors}
}

// FindOrders parses the /api/orders query string and delegates to the
// order repository.
func (q *QueryCoordinator) FindOrders(ctx context.Context, values url.Values) (persistence.Page[domain.OrderEvent], error) {
	filter, err := parseOrderFilter(values)
	if err != nil {
		return persistence.Page[domain.OrderEvent]{}, err
	}
	return q.orders.FindMany(ctx, filter, parsePagination(values), parseOrderSort(values))
}

// OrderByID delegates to the order repository.
func (q *QueryCoordinator) OrderByID(ctx context.Context, id string) (domain.OrderEvent, bool, error) {
	return q.orders.FindByID(ctx, id)
}

// OrderByExternalID accepts a partner id in canonical or short form.
func (q *QueryCoordinator) OrderByExternalID(ctx context.Context, partnerRaw, extID string) (domain.OrderEvent, bool, error) {
	partner, err := domain.NormalizePartnerID(partnerRaw)
	if err != nil {
		return domain.OrderEvent{}, false, err
	}
	return q.orders.FindByExternalID(ctx, partner, extID)
}

// OrdersByPartner accepts a partner id in canonical or short form plus
// pagination parameters.
func (q *QueryCoordinator) OrdersByPartner(ctx context.Context, partnerRaw string, values url.Values) (persistence.Page[domain.OrderEvent], error) {
	partner, err := domain.NormalizePartnerID(partnerRaw)
	if err != nil {
		return persistence.Page[domain.OrderEvent]{}, err
	}
	return q.orders.FindMany(ctx, persistence.OrderFilter{PartnerID: partner}, parsePagination(values), parseOrderSort(values))
}

// OrdersByCustomer looks up orders by exact customer id.
func (q *QueryCoordinator) OrdersByCustomer(ctx context.Context, customerID string, values url.Values) (persistence.Page[domain.OrderEvent], error) {
	return q.orders.FindMany(ctx, persistence.OrderFilter{CustomerID: customerID}, parsePagination(values), parseOrderSort(values))
}

// OrderStatistics delegates to the order repository's aggregate query.
func (q *QueryCoordinator) OrderStatistics(ctx context.Context, values url.Values) (persistence.OrderStatistics, error) {
	filter, err := parseOrderFilter(values)
	if err != nil {
		return persistence.OrderStatistics{}, err
	}
	return q.orders.Statistics(ctx, filter)
}

// FindErrors parses the /api/errors query string and delegates to the
// error repository.
func (q *QueryCoordinator) FindErrors(ctx context.Context, values url.Values) (persistence.Page[domain.ErrorEvent], error) {
	return q.errors.FindMany(ctx, parseErrorFilter(values), parsePagination(values), persistence.Sort{})
}

// ErrorByID delegates to the error repository.
func (q *QueryCoordinator) ErrorByID(ctx context.Context, id string) (domain.ErrorEvent, bool, error) {
	return q.errors.FindByID(ctx, id)
}

// ErrorStatistics delegates to the error repository's aggregate query.
func (q *QueryCoordinator) ErrorStatistics(ctx context.Context, values url.Values) (persistence.ErrorStatistics, error) {
	return q.errors.Statistics(ctx, parseErrorFilter(values))
}

func parsePagination(values url.Values) persistence.Pagination {
	return persistence.Pagination{
		Page:     parseIntParam(values, "page", 1),
		PageSize: parseIntParam(values, "pageSize", persistence.DefaultPageSize),
	}.Normalize()
}

func parseOrderSort(values url.Values) persistence.Sort {
	field := persistence.SortField(values.Get("sortBy"))
	switch field {
	case persistence.SortProcessedAt, persistence.SortTransactionTime, persistence.SortGrossAmount, persistence.SortSequenceNumber:
	default:
		field = ""
	}
	direction := persistence.SortDirection(values.Get("sortOrder"))
	if direction != persistence.SortAsc && direction != persistence.SortDesc {
		direction = ""
	}
	return persistence.Sort{Field: field, Direction: direction}
}

func parseOrderFilter(values url.Values) (persistence.OrderFilter, error) {
	var f persistence.OrderFilter

	if raw := values.Get("partnerId"); raw != "" {
		partner, err := domain.NormalizePartnerID(raw)
		if err != nil {
			return persistence.OrderFilter{}, err
		}
		f.PartnerID = partner
	}
	f.CustomerID = values.Get("customerId")
	f.ProductID = values.Get("productId")

	var err error
	if f.FromDate, err = parseDateParam(values, "fromDate"); err != nil {
		return persistence.OrderFilter{}, err
	}
	if f.ToDate, err = parseDateParam(values, "toDate"); err != nil {
		return persistence.OrderFilter{}, err
	}
	if f.MinAmount, err = parseFloatParam(values, "minAmount"); err != nil {
		return persistence.OrderFilter{}, err
	}
	if f.MaxAmount, err = parseFloatParam(values, "maxAmount"); err != nil {
		return persistence.OrderFilter{}, err
	}
	return f, nil
}

func parseErrorFilter(values url.Values) persistence.ErrorFilter {
	var f persistence.ErrorFilter
	if raw := values.Get("partnerId"); raw != "" {
		if partner, err := domain.NormalizePartnerID(raw); err == nil {
			f.PartnerID = partner
		}
	}
	f.ErrorCode = domain.ErrorCode(values.Get("errorCode"))
	f.FromDate, _ = parseDateParam(values, "fromDate")
	f.ToDate, _ = parseDateParam(values, "toDate")
	return f
}

func parseIntParam(values url.Values, key string, def int) int {
	raw := values.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseFloatParam(values url.Values, key string) (*float64, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseDateParam(values url.Values, key string) (time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
