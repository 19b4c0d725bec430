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

// ErrorStore implements persistence.ErrorRepository against Cloud Spanner.
type ErrorStore struct {
	client *spanner.Client
}

func NewErrorStore(client *spanner.Client) *ErrorStore {
	return &ErrorStore{client: client}
}

func (s *ErrorStore) readTx(ctx context.Context) platformspanner.ReadTransaction {
	if tx, ok := platformspanner.ReadTransactionFromContext(ctx); ok {
		return tx
	}
	return s.client.Single()
}

func errorMutation(e domain.ErrorEvent) (*spanner.Mutation, error) {
	if e.ID == "" {
		return nil, errors.New("spannerstore: error event must have an id before it is saved")
	}
	details, err := encodeJSON(e.Details)
	if err != nil {
		return nil, err
	}
	payload, err := encodeJSON(e.OriginalPayload)
	if err != nil {
		return nil, err
	}
	return spanner.InsertOrUpdate(errorsTable, errorColumns, []any{
		e.ID, string(e.PartnerID), e.ExternalOrderID, string(e.ErrorCode), e.Message,
		details, payload, e.Timestamp,
	}), nil
}

func (s *ErrorStore) Save(ctx context.Context, e domain.ErrorEvent) error {
	m, err := errorMutation(e)
	if err != nil {
		return err
	}
	_, err = s.client.Apply(ctx, []*spanner.Mutation{m})
	return err
}

func (s *ErrorStore) FindByID(ctx context.Context, id string) (domain.ErrorEvent, bool, error) {
	row, err := s.readTx(ctx).ReadRow(ctx, errorsTable, spanner.Key{id}, errorColumns)
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return domain.ErrorEvent{}, false, nil
		}
		return domain.ErrorEvent{}, false, err
	}
	e, err := scanError(row)
	return e, err == nil, err
}

func (s *ErrorStore) FindMany(ctx context.Context, f persistence.ErrorFilter, p persistence.Pagination, srt persistence.Sort) (persistence.Page[domain.ErrorEvent], error) {
	where, params := errorFilterClause(f)
	p = p.Normalize()
	direction := "DESC"
	if srt.Direction == persistence.SortAsc {
		direction = "ASC"
	}

	ro := s.client.ReadOnlyTransaction()
	defer ro.Close()
	ctx = platformspanner.WithReadOnlyTx(ctx, ro)

	total, err := s.countErrorsLocked(ctx, where, params)
	if err != nil {
		return persistence.Page[domain.ErrorEvent]{}, err
	}

	stmt := spanner.Statement{
		SQL: fmt.Sprintf(`SELECT %s FROM ErrorEvents %s ORDER BY Timestamp %s LIMIT @limit OFFSET @offset`,
			strings.Join(errorColumns, ", "), where, direction),
		Params: params,
	}
	stmt.Params["limit"] = int64(p.PageSize)
	stmt.Params["offset"] = int64((p.Page - 1) * p.PageSize)

	iter := s.readTx(ctx).Query(ctx, stmt)
	defer iter.Stop()

	var data []domain.ErrorEvent
	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return persistence.Page[domain.ErrorEvent]{}, err
		}
		e, err := scanError(row)
		if err != nil {
			return persistence.Page[domain.ErrorEvent]{}, err
		}
		data = append(data, e)
	}

	totalPages := (total + p.PageSize - 1) / p.PageSize
	return persistence.Page[domain.ErrorEvent]{
		Data: data, Total: total, Page: p.Page, PageSize: p.PageSize,
		TotalPages: totalPages, HasMore: p.Page < totalPages,
	}, nil
}

func (s *ErrorStore) countErrorsLocked(ctx context.Context, where string, params map[string]any) (int, error) {
	stmt := spanner.Statement{SQL: `SELECT COUNT(*) AS total FROM ErrorEvents ` + where, Params: params}
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

func (s *ErrorStore) Statistics(ctx context.Context, f persistence.ErrorFilter) (persistence.ErrorStatistics, error) {
	where, params := errorFilterClause(f)
	stats := zeroErrorStatistics()

	ro := s.client.ReadOnlyTransaction()
	defer ro.Close()
	ctx = platformspanner.WithReadOnlyTx(ctx, ro)

	stmt := spanner.Statement{
		SQL: `SELECT PartnerId, ErrorCode, COUNT(*) AS n FROM ErrorEvents ` + where + ` GROUP BY PartnerId, ErrorCode`,
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
			return persistence.ErrorStatistics{}, err
		}
		var partner, code string
		var n int64
		if err := row.Columns(&partner, &code, &n); err != nil {
			return persistence.ErrorStatistics{}, err
		}
		stats.TotalErrors += int(n)
		stats.ErrorsByPartner[domain.PartnerID(partner)] += int(n)
		stats.ErrorsByCode[domain.ErrorCode(code)] += int(n)
	}

	last24h, err := s.countErrorsLocked(ctx, appendClause(where, "Timestamp >= @since"), mergeParams(params, "since", time.Now().Add(-24*time.Hour)))
	if err != nil {
		return persistence.ErrorStatistics{}, err
	}
	stats.Last24Hours = last24h
	return stats, nil
}

func (s *ErrorStore) Clear(ctx context.Context) error {
	_, err := s.client.Apply(ctx, []*spanner.Mutation{spanner.Delete(errorsTable, spanner.AllKeys())})
	return err
}

func scanError(row *spanner.Row) (domain.ErrorEvent, error) {
	var (
		id, partner, extID, code, message string
		timestamp                         time.Time
		detailsRaw, payloadRaw            spanner.NullString
	)
	if err := row.Columns(&id, &partner, &extID, &code, &message, &detailsRaw, &payloadRaw, &timestamp); err != nil {
		return domain.ErrorEvent{}, err
	}
	var details []domain.ErrorDetail
	if detailsRaw.Valid && detailsRaw.StringVal != "" {
		if err := json.Unmarshal([]byte(detailsRaw.StringVal), &details); err != nil {
			return domain.ErrorEvent{}, err
		}
	}
	var payload domain.RawPayload
	if payloadRaw.Valid && payloadRaw.StringVal != "" {
		if err := json.Unmarshal([]byte(payloadRaw.StringVal), &payload); err != nil {
			return domain.ErrorEvent{}, err
		}
	}
	return domain.ErrorEvent{
		ID: id, PartnerID: domain.PartnerID(partner), ExternalOrderID: extID,
		ErrorCode: domain.ErrorCode(code), Message: message, Details: details,
		OriginalPayload: payload, Timestamp: timestamp,
	}, nil
}

func errorFilterClause(f persistence.ErrorFilter) (string, map[string]any) {
	var clauses []string
	params := map[string]any{}
	if f.PartnerID != "" {
		clauses = append(clauses, "PartnerId = @partnerId")
		params["partnerId"] = string(f.PartnerID)
	}
	if f.ErrorCode != "" {
		clauses = append(clauses, "ErrorCode = @errorCode")
		params["errorCode"] = string(f.ErrorCode)
	}
	if !f.FromDate.IsZero() {
		clauses = append(clauses, "Timestamp >= @fromDate")
		params["fromDate"] = f.FromDate
	}
	if !f.ToDate.IsZero() {
		clauses = append(clauses, "Timestamp <= @toDate")
		params["toDate"] = f.ToDate
	}
	if len(clauses) == 0 {
		return "", params
	}
	return "WHERE " + strings.Join(clauses, " AND "), params
}

func appendClause(where, clause string) string {
	if where == "" {
		return "WHERE " + clause
	}
	return where + " AND " + clause
}

func mergeParams(params map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[key] = value
	return out
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
