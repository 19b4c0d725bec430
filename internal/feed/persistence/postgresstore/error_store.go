package postgresstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
)

// ErrorStore implements persistence.ErrorRepository against PostgreSQL.
type ErrorStore struct {
	pool *pgxpool.Pool
}

func NewErrorStore(pool *pgxpool.Pool) *ErrorStore {
	return &ErrorStore{pool: pool}
}

const errorColumnsSQL = `id, partner_id, external_order_id, error_code, message, details, original_payload, timestamp`

const errorInsert = `
INSERT INTO error_events (id, partner_id, external_order_id, error_code, message, details, original_payload, timestamp)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

func (s *ErrorStore) Save(ctx context.Context, e domain.ErrorEvent) error {
	if e.ID == "" {
		return errors.New("postgresstore: error event must have an id before it is saved")
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(e.OriginalPayload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, errorInsert,
		e.ID, string(e.PartnerID), e.ExternalOrderID, string(e.ErrorCode), e.Message, details, payload, e.Timestamp)
	return err
}

func (s *ErrorStore) FindByID(ctx context.Context, id string) (domain.ErrorEvent, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+errorColumnsSQL+` FROM error_events WHERE id = $1`, id)
	return scanErrorRow(row)
}

func scanErrorRow(row pgx.Row) (domain.ErrorEvent, bool, error) {
	var (
		e                    domain.ErrorEvent
		partner, code        string
		detailsRaw, payload  []byte
	)
	err := row.Scan(&e.ID, &partner, &e.ExternalOrderID, &code, &e.Message, &detailsRaw, &payload, &e.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrorEvent{}, false, nil
	}
	if err != nil {
		return domain.ErrorEvent{}, false, err
	}
	e.PartnerID = domain.PartnerID(partner)
	e.ErrorCode = domain.ErrorCode(code)
	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &e.Details); err != nil {
			return domain.ErrorEvent{}, false, err
		}
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.OriginalPayload); err != nil {
			return domain.ErrorEvent{}, false, err
		}
	}
	return e, true, nil
}

func (s *ErrorStore) FindMany(ctx context.Context, f persistence.ErrorFilter, p persistence.Pagination, srt persistence.Sort) (persistence.Page[domain.ErrorEvent], error) {
	where, args := errorFilterClause(f)
	p = p.Normalize()
	direction := "DESC"
	if srt.Direction == persistence.SortAsc {
		direction = "ASC"
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM error_events `+where, args...).Scan(&total); err != nil {
		return persistence.Page[domain.ErrorEvent]{}, err
	}

	limitArg, offsetArg := len(args)+1, len(args)+2
	query := fmt.Sprintf(`SELECT %s FROM error_events %s ORDER BY timestamp %s LIMIT $%d OFFSET $%d`,
		errorColumnsSQL, where, direction, limitArg, offsetArg)
	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return persistence.Page[domain.ErrorEvent]{}, err
	}
	defer rows.Close()

	var data []domain.ErrorEvent
	for rows.Next() {
		e, _, err := scanErrorRow(rows)
		if err != nil {
			return persistence.Page[domain.ErrorEvent]{}, err
		}
		data = append(data, e)
	}
	if err := rows.Err(); err != nil {
		return persistence.Page[domain.ErrorEvent]{}, err
	}

	totalPages := (total + p.PageSize - 1) / p.PageSize
	return persistence.Page[domain.ErrorEvent]{
		Data: data, Total: total, Page: p.Page, PageSize: p.PageSize,
		TotalPages: totalPages, HasMore: p.Page < totalPages,
	}, nil
}

func (s *ErrorStore) Statistics(ctx context.Context, f persistence.ErrorFilter) (persistence.ErrorStatistics, error) {
	where, args := errorFilterClause(f)
	stats := zeroErrorStatistics()

	rows, err := s.pool.Query(ctx, `
		SELECT partner_id, error_code, COUNT(*) FROM error_events `+where+` GROUP BY partner_id, error_code`, args...)
	if err != nil {
		return persistence.ErrorStatistics{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var partner, code string
		var n int
		if err := rows.Scan(&partner, &code, &n); err != nil {
			return persistence.ErrorStatistics{}, err
		}
		stats.TotalErrors += n
		stats.ErrorsByPartner[domain.PartnerID(partner)] += n
		stats.ErrorsByCode[domain.ErrorCode(code)] += n
	}
	if err := rows.Err(); err != nil {
		return persistence.ErrorStatistics{}, err
	}

	since := time.Now().Add(-24 * time.Hour)
	last24hWhere, last24hArgs := errorFilterClause(f)
	if last24hWhere == "" {
		last24hWhere = "WHERE timestamp >= $1"
	} else {
		last24hWhere += fmt.Sprintf(" AND timestamp >= $%d", len(last24hArgs)+1)
	}
	last24hArgs = append(last24hArgs, since)
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM error_events `+last24hWhere, last24hArgs...).Scan(&stats.Last24Hours); err != nil {
		return persistence.ErrorStatistics{}, err
	}
	return stats, nil
}

func (s *ErrorStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM error_events`)
	return err
}

func errorFilterClause(f persistence.ErrorFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.PartnerID != "" {
		add("partner_id = $%d", string(f.PartnerID))
	}
	if f.ErrorCode != "" {
		add("error_code = $%d", string(f.ErrorCode))
	}
	if !f.FromDate.IsZero() {
		add("timestamp >= $%d", f.FromDate)
	}
	if !f.ToDate.IsZero() {
		add("timestamp <= $%d", f.ToDate)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func zeroErrorStatistics() persistence.ErrorStatistics {
	stats := persistence.ErrorStatistics{
		ErrorsByPartner: make(map[domain.PartnerID]int, len(domain.AllPartners)),
		ErrorsByCode:    make(map[domain.ErrorCode]int),
	}
	for _, p := range domain.AllPartners {
		stats.ErrorsByPartner[p] = 0
	}
	return stats
}

var _ persistence.ErrorRepository = (*ErrorStore)(nil)
