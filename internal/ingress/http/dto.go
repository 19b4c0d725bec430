package http

import (
	"time"

	"github.com/arkbound/orderfeed/internal/feed/coordinator"
	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/persistence"
)

type orderDTO struct {
	ID              string         `json:"id"`
	ExternalOrderID string         `json:"externalOrderId"`
	PartnerID       domain.PartnerID `json:"partnerId"`
	SequenceNumber  int64          `json:"sequenceNumber"`
	ProductID       string         `json:"productId"`
	CustomerID      string         `json:"customerId"`
	Quantity        int64          `json:"quantity"`
	UnitPrice       float64        `json:"unitPrice"`
	TaxRate         float64        `json:"taxRate"`
	GrossAmount     float64        `json:"grossAmount"`
	TaxAmount       float64        `json:"taxAmount"`
	NetAmount       float64        `json:"netAmount"`
	TransactionTime string         `json:"transactionTime"`
	ProcessedAt     string         `json:"processedAt"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func toOrderDTO(o domain.OrderEvent) orderDTO {
	return orderDTO{
		ID:              o.ID,
		ExternalOrderID: o.ExternalOrderID,
		PartnerID:       o.PartnerID,
		SequenceNumber:  o.SequenceNumber,
		ProductID:       o.ProductID,
		CustomerID:      o.CustomerID,
		Quantity:        o.Quantity,
		UnitPrice:       o.UnitPrice,
		TaxRate:         o.TaxRate,
		GrossAmount:     o.GrossAmount,
		TaxAmount:       o.TaxAmount,
		NetAmount:       o.NetAmount,
		TransactionTime: o.TransactionTimeRFC3339Milli(),
		ProcessedAt:     o.ProcessedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Metadata:        o.Metadata,
	}
}

type errorDetailDTO struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	ReceivedValue any    `json:"receivedValue,omitempty"`
	ExpectedType  string `json:"expectedType,omitempty"`
}

type errorEventDTO struct {
	ID              string           `json:"id"`
	PartnerID       domain.PartnerID `json:"partnerId"`
	ExternalOrderID string           `json:"externalOrderId,omitempty"`
	ErrorCode       domain.ErrorCode `json:"errorCode"`
	Message         string           `json:"message"`
	Details         []errorDetailDTO `json:"details"`
	OriginalPayload map[string]any   `json:"originalPayload,omitempty"`
	Timestamp       string           `json:"timestamp"`
}

func toErrorEventDTO(e domain.ErrorEvent) errorEventDTO {
	details := make([]errorDetailDTO, len(e.Details))
	for i, d := range e.Details {
		details[i] = errorDetailDTO{
			Field:         d.Field,
			Message:       d.Message,
			ReceivedValue: d.ReceivedValue,
			ExpectedType:  d.ExpectedType,
		}
	}
	return errorEventDTO{
		ID:              e.ID,
		PartnerID:       e.PartnerID,
		ExternalOrderID: e.ExternalOrderID,
		ErrorCode:       e.ErrorCode,
		Message:         e.Message,
		Details:         details,
		OriginalPayload: e.OriginalPayload,
		Timestamp:       e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

type feedAcceptedResponse struct {
	Status         string           `json:"status"`
	OrderID        string           `json:"orderId"`
	PartnerID      domain.PartnerID `json:"partnerId"`
	SequenceNumber int64            `json:"sequenceNumber"`
}

type feedRejectedResponse struct {
	Status    string           `json:"status"`
	OrderID   string           `json:"orderId"`
	PartnerID domain.PartnerID `json:"partnerId"`
	Errors    []string         `json:"errors"`
}

func toFeedResponse(r coordinator.ProcessingResult) (int, any) {
	if r.Success {
		return 202, feedAcceptedResponse{
			Status:         "accepted",
			OrderID:        r.OrderID,
			PartnerID:      r.PartnerID,
			SequenceNumber: r.SequenceNumber,
		}
	}
	return 422, feedRejectedResponse{
		Status:    "rejected",
		OrderID:   r.OrderID,
		PartnerID: r.PartnerID,
		Errors:    r.Errors,
	}
}

type batchResponse struct {
	Total    int   `json:"total"`
	Accepted int   `json:"accepted"`
	Rejected int   `json:"rejected"`
	Results  []any `json:"results"`
}

func toBatchResponse(b coordinator.BatchResult) batchResponse {
	results := make([]any, len(b.Results))
	for i, r := range b.Results {
		_, body := toFeedResponse(r)
		results[i] = body
	}
	return batchResponse{Total: b.Total, Accepted: b.Accepted, Rejected: b.Rejected, Results: results}
}

type orderPageResponse struct {
	Status     string     `json:"status"`
	Data       []orderDTO `json:"data"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalPages int        `json:"totalPages"`
	HasMore    bool       `json:"hasMore"`
}

func toOrderPageResponse(p persistence.Page[domain.OrderEvent]) orderPageResponse {
	data := make([]orderDTO, len(p.Data))
	for i, o := range p.Data {
		data[i] = toOrderDTO(o)
	}
	return orderPageResponse{
		Status: "success", Data: data, Total: p.Total, Page: p.Page,
		PageSize: p.PageSize, TotalPages: p.TotalPages, HasMore: p.HasMore,
	}
}

type errorPageResponse struct {
	Status     string          `json:"status"`
	Data       []errorEventDTO `json:"data"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
	HasMore    bool            `json:"hasMore"`
}

func toErrorPageResponse(p persistence.Page[domain.ErrorEvent]) errorPageResponse {
	data := make([]errorEventDTO, len(p.Data))
	for i, e := range p.Data {
		data[i] = toErrorEventDTO(e)
	}
	return errorPageResponse{
		Status: "success", Data: data, Total: p.Total, Page: p.Page,
		PageSize: p.PageSize, TotalPages: p.TotalPages, HasMore: p.HasMore,
	}
}

type orderResponse struct {
	Status string   `json:"status"`
	Order  orderDTO `json:"order"`
}

type errorResponse struct {
	Status string        `json:"status"`
	Error  errorEventDTO `json:"error"`
}

type statisticsResponse struct {
	Status     string `json:"status"`
	Statistics any    `json:"statistics"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func nowRFC3339Milli() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
