package validation_test

import (
	"testing"
	"time"

	"github.com/arkbound/orderfeed/internal/feed/domain"
	"github.com/arkbound/orderfeed/internal/feed/validation"
)

func validPartnerAPayload() map[string]any {
	return map[string]any{
		"orderId":           "A-1001",
		"skuId":             "SKU-77",
		"customerId":        "CUST-1",
		"quantity":          float64(3),
		"unitPrice":         float64(12.5),
		"taxRate":           float64(0.08),
		"transactionTimeMs": float64(time.Now().UnixMilli()),
	}
}

func TestPartnerAValidator_AcceptsWellFormedPayload(t *testing.T) {
	v := validation.PartnerAValidator{}
	result := v.Validate(validPartnerAPayload())

	if !result.OK() {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
	in, ok := result.Input.(domain.PartnerAInput)
	if !ok {
		t.Fatalf("expected domain.PartnerAInput, got %T", result.Input)
	}
	if in.OrderID != "A-1001" {
		t.Errorf("unexpected order id: %q", in.OrderID)
	}
}

func TestPartnerAValidator_RejectsNonMappingRoot(t *testing.T) {
	v := validation.PartnerAValidator{}
	result := v.Validate([]any{1, 2, 3})

	if result.OK() {
		t.Fatal("expected root check to fail")
	}
	if len(result.Errors) != 1 || result.Errors[0].Field != "$root" {
		t.Fatalf("expected a single $root error, got %v", result.Errors)
	}
}

func TestPartnerAValidator_CollectsEveryFieldError(t *testing.T) {
	v := validation.PartnerAValidator{}
	payload := map[string]any{
		"orderId":   "   ",
		"skuId":     "SKU-1",
		"quantity":  float64(-2),
		"unitPrice": float64(0),
		"taxRate":   float64(1.5),
	}
	result := v.Validate(payload)

	if result.OK() {
		t.Fatal("expected errors")
	}
	// customerId missing, transactionTimeMs missing, orderId blank,
	// quantity negative, unitPrice zero, taxRate out of range: six.
	if len(result.Errors) != 6 {
		t.Fatalf("expected 6 field errors, got %d: %v", len(result.Errors), result.Errors)
	}
}

func TestPartnerAValidator_RejectsTimestampOutsideWindow(t *testing.T) {
	v := validation.PartnerAValidator{}
	payload := validPartnerAPayload()
	payload["transactionTimeMs"] = float64(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())

	result := v.Validate(payload)
	if result.OK() {
		t.Fatal("expected timestamp rejection")
	}
	found := false
	for _, e := range result.Errors {
		if e.Field == "transactionTimeMs" && e.Code == domain.CodeInvalidTimestamp {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an INVALID_TIMESTAMP error, got %v", result.Errors)
	}
}

func validPartnerBPayload() map[string]any {
	return map[string]any{
		"transactionId": "B-500",
		"itemCode":      "ITEM-9",
		"clientId":      "CLIENT-1",
		"qty":           float64(1),
		"price":         float64(40),
		"tax":           float64(8),
		"purchaseTime":  time.Now().UTC().Format(time.RFC3339),
	}
}

func TestPartnerBValidator_AcceptsWellFormedPayload(t *testing.T) {
	v := validation.PartnerBValidator{}
	result := v.Validate(validPartnerBPayload())

	if !result.OK() {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
}

func TestPartnerBValidator_RejectsUnparseableTimestamp(t *testing.T) {
	v := validation.PartnerBValidator{}
	payload := validPartnerBPayload()
	payload["purchaseTime"] = "not-a-date"

	result := v.Validate(payload)
	if result.OK() {
		t.Fatal("expected errors")
	}
	if result.Errors[0].Code != domain.CodeInvalidTimestamp {
		t.Errorf("expected INVALID_TIMESTAMP, got %v", result.Errors[0].Code)
	}
}

func TestPartnerBValidator_RejectsTaxOutsidePercentRange(t *testing.T) {
	v := validation.PartnerBValidator{}
	payload := validPartnerBPayload()
	payload["tax"] = float64(150)

	result := v.Validate(payload)
	if result.OK() {
		t.Fatal("expected errors")
	}
}

func TestFor_ReturnsUnknownPartnerError(t *testing.T) {
	_, err := validation.For(domain.PartnerID("unknown"))
	if err != domain.ErrUnknownPartner {
		t.Errorf("expected ErrUnknownPartner, got %v", err)
	}
}
