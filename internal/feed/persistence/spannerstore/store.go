// Package spannerstore is a Cloud Spanner-backed alternate for C5/C6,
// swapped in for the in-memory reference when ORDERFEED_STORE=spanner.
// It drives *spanner.Client directly rather than through a generic
// transaction Scope: this package is the only component in the system
// that opens a Spanner transaction, so no reusable Scope abstraction
// earns its keep. It still threads its own transaction through
// internal/platform/spanner's context helpers, so a multi-query read
// like FindMany sees a consistent snapshot across its count and data
// queries.
package spannerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
	platformspanner "github.com/arkbound/orderfeed/internal/platform/spanner"
)

const (
	ordersTable = "Orders"
	errorsTable = "ErrorEvents"
)

var orderColumns = []string{
	"Id", "ExternalOrderId", "PartnerId", "SequenceNumber", "ProductId", "CustomerId",
	"Quantity", "UnitPrice", "TaxRate", "GrossAmount", "TaxAmount", "NetAmount",
	"TransactionTime", "ProcessedAt", "Metadata",
}

var errorColumns = []string{
	"Id", "PartnerId", "ExternalOrderId", "ErrorCode", "Message", "Details",
	"OriginalPayload", "Timestamp",
}

// OrderStore implements persistence.OrderRepository against Cloud Spanner.
type OrderStore struct {
	client *spanner.Client
}

func NewOrderStore(client *spanner.Client) *OrderStore {
	return &OrderStore{client: client}
}

func orderMutation(o domain.OrderEvent) (*spanner.Mutation, error) {
	metadata, err := encodeJSON(o.Metadata)
	if err != nil {
		return nil, err
	}
	return spanner.InsertOrUpdate(ordersTable, orderColumns, []any{
		o.ID, o.ExternalOrderID, string(o.PartnerID), o.SequenceNumber, o.ProductID, o.CustomerID,
		o.Quantity, o.UnitPrice, o.TaxRate, o.GrossAmount, o.TaxAmount, o.NetAmount,
		o.TransactionTime, o.ProcessedAt, metadata,
	}), nil
}

func (s *OrderStore) Save(ctx context.Context, o domain.OrderEvent) error {
	return s.SaveBatch(ctx, []domain.OrderEvent{o})
}

// SaveBatch writes every order row inside one read-write transaction, so
// SaveBatch is atomic to readers (I2/§4.5). External-id lookups query the
// same Orders rows; no separate index entry is written.
func (s *OrderStore) SaveBatch(ctx context.Context, orders []domain.OrderEvent) error {
	if len(orders) == 0 {
		return nil
	}
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		muts := make([]*spanner.Mutation, 0, len(orders))
		for _, o := range orders {
			m, err := orderMutation(o)
			if err != nil {
				return err
			}
			muts = append(muts, m)
		}
		return tx.BufferWrite(muts)
	})
	return err
}

// readTx returns the transaction active on ctx, if OrderStore is being
// called from within one of its own FindMany/Statistics snapshots;
// otherwise it falls back to a single strongly-consistent read.
func (s *OrderStore) readTx(ctx context.Context) platformspanner.ReadTransaction {
	if tx, ok := platformspanner.ReadTransactionFromContext(ctx); ok {
		return tx
	}
	return s.client.Single()
}

func (s *OrderStore) FindByID(ctx context.Context, id string) (domain.OrderEvent, bool, error) {
	row, err := s.readTx(ctx).ReadRow(ctx, ordersTable, spanner.Key{id}, orderColumns)
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return domain.OrderEvent{}, false, nil
		}
		return domain.OrderEvent{}, false, err
	}
	order, err := scanOrder(row)
	return order, err == nil, err
}

func (s *OrderStore) FindByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (domain.OrderEvent, bool, error) {
	stmt := spanner.Statement{
		SQL: `SELECT ` + strings.Join(orderColumns, ", ") + ` FROM Orders
		      WHERE PartnerId = @partner AND ExternalOrderId = @extId
		      ORDER BY ProcessedAt DESC LIMIT 1`,
		Params: map[string]any{"partner": string(partner), "extId": extID},
	}
	iter := s.readTx(ctx).Query(ctx, stmt)
	defer iter.Stop()
	row, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.OrderEvent{}, false, nil
	}
	if err != nil {
		return domain.OrderEvent{}, false, err
	}
	order, err := scanOrder(row)
	return order, err == nil, err
}

func (s *OrderStore) ExistsByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (bool, error) {
	_, ok, err := s.FindByExternalID(ctx, partner, extID)
	return ok, err
}

func (s *OrderStore) FindMany(ctx context.Context, f persistence.OrderFilter, p persistence.Pagination, srt persistence.Sort) (persistence.Page[domain.OrderEvent], error) {
	where, params := orderFilterClause(f)
	p = p.Normalize()
	if srt.Field == "" {
		srt = persistence.Sort{Field: persistence.SortProcessedAt, Direction: persistence.SortDesc}
	}

	ro := s.client.ReadOnlyTransaction()
	defer ro.Close()
	ctx = platformspanner.WithReadOnlyTx(ctx, ro)

	total, err := s.countLocked(ctx, where, params)
	if err != nil {
		return persistence.Page[domain.OrderEvent]{}, err
	}

	stmt := spanner.Statement{
		SQL: fmt.Sprintf(`SELECT %s FROM Orders %s ORDER BY %s %s LIMIT @limit OFFSET @offset`,
			strings.Join(orderColumns, ", "), where, sortColumn(srt.Field), sortDirection(srt.Direction)),
		Params: params,
	}
	stmt.Params["limit"] = int64(p.PageSize)
	stmt.Params["offset"] = int64((p.Page - 1) * p.PageSize)

	iter := s.readTx(ctx).Query(ctx, stmt)
	defer iter.Stop()

	var data []domain.OrderEvent
	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return persistence.Page[domain.OrderEvent]{}, err
		}
		order, err := scanOrder(row)
		if err != nil {
			return persistence.Page[domain.OrderEvent]{}, err
		}
		data = append(data, order)
	}

	totalPages := (total + p.PageSize - 1) / p.PageSize
	return persistence.Page[domain.OrderEvent]{
		Data: data, Total: total, Page: p.Page, PageSize: p.PageSize,
		TotalPages: totalPages, HasMore: p.Page < totalPages,
	}, nil
}

func (s *OrderStore) countLocked(ctx context.Context, where string, params map[string]any) (int, error) {
	stmt := spanner.Statement{SQL: `SELECT COUNT(*) AS total FROM Orders ` + where, Params: params}
	iter := s.readTx(ctx).Query(ctx, stmt)
	defer iter.Stop()
	row, err := iter.Next()
	if err != nil {
		return 0, err
	}
	var total int64
	if err := row.Columns(&total); err != nil {
		return 0, err
	}
	return int(total), nil
}

func (s *OrderStore) Count(ctx context.Context, f persistence.OrderFilter) (int, error) {
	where, params := orderFilterClause(f)
	return s.countLocked(ctx, where, params)
}

func (s *OrderStore) Statistics(ctx context.Context, f persistence.OrderFilter) (persistence.OrderStatistics, error) {
	where, params := orderFilterClause(f)
	stats := zeroOrderStatistics()

	stmt := spanner.Statement{
		SQL: `SELECT PartnerId, COUNT(*) AS n, SUM(GrossAmount) AS gross, SUM(TaxAmount) AS tax,
		      SUM(NetAmount) AS net, MAX(SequenceNumber) AS maxSeq FROM Orders ` + where + ` GROUP BY PartnerId`,
		Params: params,
	}
	iter := s.readTx(ctx).Query(ctx, stmt)
	defer iter.Stop()

	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return persistence.OrderStatistics{}, err
		}
		var partner string
		var n, maxSeq int64
		var gross, tax, net float64
		if err := row.Columns(&partner, &n, &gross, &tax, &net, &maxSeq); err != nil {
			return persistence.OrderStatistics{}, err
		}
		p := domain.PartnerID(partner)
		stats.TotalOrders += int(n)
		stats.OrdersByPartner[p] = int(n)
		stats.TotalGrossAmount += gross
		stats.TotalTaxAmount += tax
		stats.TotalNetAmount += net
		stats.HighestSequence[p] = maxSeq
	}

	stats.TotalGrossAmount = domain.RoundToCents(stats.TotalGrossAmount)
	stats.TotalTaxAmount = domain.RoundToCents(stats.TotalTaxAmount)
	stats.TotalNetAmount = domain.RoundToCents(stats.TotalNetAmount)
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = domain.RoundToCents(stats.TotalGrossAmount / float64(stats.TotalOrders))
	}
	return stats, nil
}

func (s *OrderStore) Clear(ctx context.Context) error {
	_, err := s.client.Apply(ctx, []*spanner.Mutation{spanner.Delete(ordersTable, spanner.AllKeys())})
	return err
}

func scanOrder(row *spanner.Row) (domain.OrderEvent, error) {
	var (
		id, extID, partner, productID, customerID string
		seq, quantity                              int64
		unitPrice, taxRate, gross, tax, net        float64
		txTime, processedAt                        time.Time
		metadataRaw                                spanner.NullString
	)
	if err := row.Columns(&id, &extID, &partner, &seq, &productID, &customerID,
		&quantity, &unitPrice, &taxRate, &gross, &tax, &net, &txTime, &processedAt, &metadataRaw); err != nil {
		return domain.OrderEvent{}, err
	}
	metadata, err := decodeJSON(metadataRaw)
	if err != nil {
		return domain.OrderEvent{}, err
	}
	return domain.OrderEvent{
		ID: id, ExternalOrderID: extID, PartnerID: domain.PartnerID(partner),
		SequenceNumber: seq, ProductID: productID, CustomerID: customerID,
		Quantity: quantity, UnitPrice: unitPrice, TaxRate: taxRate,
		GrossAmount: gross, TaxAmount: tax, NetAmount: net,
		TransactionTime: txTime, ProcessedAt: processedAt, Metadata: metadata,
	}, nil
}

func orderFilterClause(f persistence.OrderFilter) (string, map[string]any) {
	var clauses []string
	params := map[string]any{}

	if f.PartnerID != "" {
		clauses = append(clauses, "PartnerId = @partnerId")
		params["partnerId"] = string(f.PartnerID)
	}
	if f.CustomerID != "" {
		clauses = append(clauses, "CustomerId = @customerId")
		params["customerId"] = f.CustomerID
	}
	if f.ProductID != "" {
		clauses = append(clauses, "ProductId = @productId")
		params["productId"] = f.ProductID
	}
	if !f.FromDate.IsZero() {
		clauses = append(clauses, "TransactionTime >= @fromDate")
		params["fromDate"] = f.FromDate
	}
	if !f.ToDate.IsZero() {
		clauses = append(clauses, "TransactionTime <= @toDate")
		params["toDate"] = f.ToDate
	}
	if f.MinAmount != nil {
		clauses = append(clauses, "GrossAmount >= @minAmount")
		params["minAmount"] = *f.MinAmount
	}
	if f.MaxAmount != nil {
		clauses = append(clauses, "GrossAmount <= @maxAmount")
		params["maxAmount"] = *f.MaxAmount
	}

	if len(clauses) == 0 {
		return "", params
	}
	return "WHERE " + strings.Join(clauses, " AND "), params
}

func sortColumn(f persistence.SortField) string {
	switch f {
	case persistence.SortTransactionTime:
		return "TransactionTime"
	case persistence.SortGrossAmount:
		return "GrossAmount"
	case persistence.SortSequenceNumber:
		return "SequenceNumber"
	default:
		return "ProcessedAt"
	}
}

func sortDirection(d persistence.SortDirection) string {
	if d == persistence.SortDesc {
		return "DESC"
	}
	return "ASC"
}

func encodeJSON(v any) (spanner.NullString, error) {
	if v == nil {
		return spanner.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return spanner.NullString{}, err
	}
	return spanner.NullString{StringVal: string(b), Valid: true}, nil
}

func decodeJSON(raw spanner.NullString) (map[string]any, error) {
	if !raw.Valid || raw.StringVal == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.StringVal), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func zeroOrderStatistics() persistence.OrderStatistics {
	stats := persistence.OrderStatistics{
		OrdersByPartner: make(map[domain.PartnerID]int, len(domain.AllPartners)),
		HighestSequence: make(map[domain.PartnerID]int64, len(domain.AllPartners)),
	}
	for _, p := range domain.AllPartners {
		stats.OrdersByPartner[p] = 0
		stats.HighestSequence[p] = 0
	}
	return stats
}

var _ persistence.OrderRepository = (*OrderStore)(nil)
