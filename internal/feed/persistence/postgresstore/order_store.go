package postgresstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
)

// OrderStore implements persistence.OrderRepository against PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderInsert = `
INSERT INTO orders (id, external_order_id, partner_id, sequence_number, product_id, customer_id,
                     quantity, unit_price, tax_rate, gross_amount, tax_amount, net_amount,
                     transaction_time, processed_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (partner_id, external_order_id) DO UPDATE SET
	id = EXCLUDED.id,
	sequence_number = EXCLUDED.sequence_number,
	product_id = EXCLUDED.product_id,
	customer_id = EXCLUDED.customer_id,
	quantity = EXCLUDED.quantity,
	unit_price = EXCLUDED.unit_price,
	tax_rate = EXCLUDED.tax_rate,
	gross_amount = EXCLUDED.gross_amount,
	tax_amount = EXCLUDED.tax_amount,
	net_amount = EXCLUDED.net_amount,
	transaction_time = EXCLUDED.transaction_time,
	processed_at = EXCLUDED.processed_at,
	metadata = EXCLUDED.metadata`

func (s *OrderStore) Save(ctx context.Context, o domain.OrderEvent) error {
	return s.SaveBatch(ctx, []domain.OrderEvent{o})
}

// SaveBatch writes every order inside one transaction, so a partial write
// never becomes visible to readers (I2/§4.5).
func (s *OrderStore) SaveBatch(ctx context.Context, orders []domain.OrderEvent) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgresstore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range orders {
		metadata, err := json.Marshal(o.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, orderInsert,
			o.ID, o.ExternalOrderID, string(o.PartnerID), o.SequenceNumber, o.ProductID, o.CustomerID,
			o.Quantity, o.UnitPrice, o.TaxRate, o.GrossAmount, o.TaxAmount, o.NetAmount,
			o.TransactionTime, o.ProcessedAt, metadata,
		); err != nil {
			return fmt.Errorf("postgresstore: insert order %s: %w", o.ID, err)
		}
	}
	return tx.Commit(ctx)
}

const orderColumnsSQL = `id, external_order_id, partner_id, sequence_number, product_id, customer_id,
	quantity, unit_price, tax_rate, gross_amount, tax_amount, net_amount,
	transaction_time, processed_at, metadata`

func (s *OrderStore) FindByID(ctx context.Context, id string) (domain.OrderEvent, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumnsSQL+` FROM orders WHERE id = $1`, id)
	return scanOrderRow(row)
}

func (s *OrderStore) FindByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (domain.OrderEvent, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumnsSQL+` FROM orders WHERE partner_id = $1 AND external_order_id = $2`,
		string(partner), extID)
	return scanOrderRow(row)
}

func (s *OrderStore) ExistsByExternalID(ctx context.Context, partner domain.PartnerID, extID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE partner_id = $1 AND external_order_id = $2)`,
		string(partner), extID).Scan(&exists)
	return exists, err
}

func scanOrderRow(row pgx.Row) (domain.OrderEvent, bool, error) {
	var (
		o        domain.OrderEvent
		partner  string
		metadata []byte
	)
	err := row.Scan(&o.ID, &o.ExternalOrderID, &partner, &o.SequenceNumber, &o.ProductID, &o.CustomerID,
		&o.Quantity, &o.UnitPrice, &o.TaxRate, &o.GrossAmount, &o.TaxAmount, &o.NetAmount,
		&o.TransactionTime, &o.ProcessedAt, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrderEvent{}, false, nil
	}
	if err != nil {
		return domain.OrderEvent{}, false, err
	}
	o.PartnerID = domain.PartnerID(partner)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
			return domain.OrderEvent{}, false, err
		}
	}
	return o, true, nil
}

func (s *OrderStore) FindMany(ctx context.Context, f persistence.OrderFilter, p persistence.Pagination, srt persistence.Sort) (persistence.Page[domain.OrderEvent], error) {
	where, args := orderFilterClause(f)
	p = p.Normalize()

	total, err := s.Count(ctx, f)
	if err != nil {
		return persistence.Page[domain.OrderEvent]{}, err
	}

	column := orderSortColumn(srt.Field)
	direction := "DESC"
	if srt.Direction == persistence.SortAsc {
		direction = "ASC"
	}
	limitArg, offsetArg := len(args)+1, len(args)+2
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		orderColumnsSQL, where, column, direction, limitArg, offsetArg)
	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return persistence.Page[domain.OrderEvent]{}, err
	}
	defer rows.Close()

	var data []domain.OrderEvent
	for rows.Next() {
		o, _, err := scanOrderRow(rows)
		if err != nil {
			return persistence.Page[domain.OrderEvent]{}, err
		}
		data = append(data, o)
	}
	if err := rows.Err(); err != nil {
		return persistence.Page[domain.OrderEvent]{}, err
	}

	totalPages := (total + p.PageSize - 1) / p.PageSize
	return persistence.Page[domain.OrderEvent]{
		Data: data, Total: total, Page: p.Page, PageSize: p.PageSize,
		TotalPages: totalPages, HasMore: p.Page < totalPages,
	}, nil
}

func (s *OrderStore) Count(ctx context.Context, f persistence.OrderFilter) (int, error) {
	where, args := orderFilterClause(f)
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total)
	return total, err
}

func (s *OrderStore) Statistics(ctx context.Context, f persistence.OrderFilter) (persistence.OrderStatistics, error) {
	where, args := orderFilterClause(f)
	stats := zeroOrderStatistics()

	rows, err := s.pool.Query(ctx, `
		SELECT partner_id, COUNT(*), COALESCE(SUM(gross_amount), 0), COALESCE(SUM(tax_amount), 0),
		       COALESCE(SUM(net_amount), 0), COALESCE(MAX(sequence_number), 0)
		FROM orders `+where+` GROUP BY partner_id`, args...)
	if err != nil {
		return persistence.OrderStatistics{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var partner string
		var n int
		var gross, tax, net float64
		var maxSeq int64
		if err := rows.Scan(&partner, &n, &gross, &tax, &net, &maxSeq); err != nil {
			return persistence.OrderStatistics{}, err
		}
		p := domain.PartnerID(partner)
		stats.TotalOrders += n
		stats.OrdersByPartner[p] = n
		stats.TotalGrossAmount += gross
		stats.TotalTaxAmount += tax
		stats.TotalNetAmount += net
		stats.HighestSequence[p] = maxSeq
	}
	if err := rows.Err(); err != nil {
		return persistence.OrderStatistics{}, err
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
	_, err := s.pool.Exec(ctx, `DELETE FROM orders`)
	return err
}

func orderFilterClause(f persistence.OrderFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.PartnerID != "" {
		add("partner_id = $%d", string(f.PartnerID))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.ProductID != "" {
		add("product_id = $%d", f.ProductID)
	}
	if !f.FromDate.IsZero() {
		add("transaction_time >= $%d", f.FromDate)
	}
	if !f.ToDate.IsZero() {
		add("transaction_time <= $%d", f.ToDate)
	}
	if f.MinAmount != nil {
		add("gross_amount >= $%d", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("gross_amount <= $%d", *f.MaxAmount)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func orderSortColumn(f persistence.SortField) string {
	switch f {
	case persistence.SortTransactionTime:
		return "transaction_time"
	case persistence.SortGrossAmount:
		return "gross_amount"
	case persistence.SortSequenceNumber:
		return "sequence_number"
	default:
		return "processed_at"
	}
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
