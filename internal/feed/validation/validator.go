// Package validation implements C1: one Validator per partner, each
// performing a root/type/value check pass over a raw decoded payload and
// collecting every field-level failure instead of stopping at the first.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/arkbound/orderfeed/internal/feed/domain"
)

// plausibilityWindow bounds transaction timestamps: no partner feed in
// this system predates the year 2000, and nothing legitimately arrives
// dated a century into the future.
var (
	plausibilityLo = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	plausibilityHi = time.Now().AddDate(100, 0, 0)
)

func inPlausibilityWindow(t time.Time) bool {
	return !t.Before(plausibilityLo) && !t.After(plausibilityHi)
}

// FieldError is one rejected field, carrying enough context for an
// ErrorEvent detail entry.
type FieldError struct {
	Field         string
	Code          domain.ErrorCode
	Message       string
	ReceivedValue any
	ExpectedType  string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e FieldError) toDetail() domain.ErrorDetail {
	return domain.ErrorDetail{
		Field:         e.Field,
		Message:       e.Message,
		ReceivedValue: e.ReceivedValue,
		ExpectedType:  e.ExpectedType,
	}
}

// ValidationResult is the outcome of Validate: either a typed input (one
// of domain.PartnerAInput / domain.PartnerBInput) with no errors, or a
// non-empty list of FieldErrors and no input.
type ValidationResult struct {
	Input  any
	Errors []FieldError
}

func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// PrimaryCode picks the ErrorEvent-level code for a failed result: the
// first field error's code, in field-declaration order. Field order is
// deterministic because each Validator checks fields in a fixed sequence.
func (r ValidationResult) PrimaryCode() domain.ErrorCode {
	if len(r.Errors) == 0 {
		return domain.CodeInvalidValue
	}
	return r.Errors[0].Code
}

// Details converts the collected FieldErrors into ErrorEvent details.
func (r ValidationResult) Details() []domain.ErrorDetail {
	details := make([]domain.ErrorDetail, len(r.Errors))
	for i, e := range r.Errors {
		details[i] = e.toDetail()
	}
	return details
}

// Validator performs the per-partner schema check described in spec §4.1.
type Validator interface {
	Validate(raw any) ValidationResult
}

// For returns the Validator for the given partner.
func For(partner domain.PartnerID) (Validator, error) {
	switch partner {
	case domain.PartnerA:
		return PartnerAValidator{}, nil
	case domain.PartnerB:
		return PartnerBValidator{}, nil
	default:
		return nil, domain.ErrUnknownPartner
	}
}

// asMapping performs the root check: the payload must be a non-nil
// mapping, not a list or scalar. On failure it returns a single root
// FieldError and the caller must not attempt further field checks (there
// is nothing to index).
func asMapping(raw any) (map[string]any, *FieldError) {
	if raw == nil {
		return nil, &FieldError{
			Field:        "$root",
			Code:         domain.CodeNullValue,
			Message:      "payload must not be null",
			ExpectedType: "mapping",
		}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &FieldError{
			Field:         "$root",
			Code:          domain.CodeInvalidDataType,
			Message:       "payload must be a JSON object",
			ReceivedValue: raw,
			ExpectedType:  "mapping",
		}
	}
	return m, nil
}

// fieldChecker collects errors for one Validate call.
type fieldChecker struct {
	m      map[string]any
	errors []FieldError
}

func (c *fieldChecker) fail(field string, code domain.ErrorCode, msg string, received any, expected string) {
	c.errors = append(c.errors, FieldError{
		Field:         field,
		Code:          code,
		Message:       msg,
		ReceivedValue: received,
		ExpectedType:  expected,
	})
}

// requireString fetches a required string field, trims it, and rejects
// empty/whitespace-only values as INVALID_VALUE (never MISSING_REQUIRED_FIELD).
func (c *fieldChecker) requireString(field string) (string, bool) {
	v, present := c.m[field]
	if !present {
		c.fail(field, domain.CodeMissingRequiredField, field+" is required", nil, "string")
		return "", false
	}
	if v == nil {
		c.fail(field, domain.CodeNullValue, field+" must not be null", nil, "string")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.fail(field, domain.CodeInvalidDataType, field+" must be a string", v, "string")
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		c.fail(field, domain.CodeInvalidValue, field+" must not be empty or whitespace", v, "string")
		return "", false
	}
	return s, true
}

// optionalString fetches an optional string field. Presence with the
// wrong type is still reported; absence is not an error.
func (c *fieldChecker) optionalString(field string) (string, bool) {
	v, present := c.m[field]
	if !present || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.fail(field, domain.CodeInvalidDataType, field+" must be a string", v, "string")
		return "", false
	}
	return s, true
}

// requireNumber fetches a required numeric field (JSON numbers decode as
// float64). NaN never appears from encoding/json, but the check is kept
// per spec's explicit "numbers are not NaN" requirement, e.g. for values
// built programmatically rather than decoded from wire JSON.
func (c *fieldChecker) requireNumber(field string) (float64, bool) {
	v, present := c.m[field]
	if !present {
		c.fail(field, domain.CodeMissingRequiredField, field+" is required", nil, "number")
		return 0, false
	}
	if v == nil {
		c.fail(field, domain.CodeNullValue, field+" must not be null", nil, "number")
		return 0, false
	}
	n, ok := v.(float64)
	if !ok {
		c.fail(field, domain.CodeInvalidDataType, field+" must be a number", v, "number")
		return 0, false
	}
	if n != n { // NaN
		c.fail(field, domain.CodeNotANumber, field+" must not be NaN", v, "number")
		return 0, false
	}
	return n, true
}

// requirePositiveInt validates a required field is an integer > 0.
func (c *fieldChecker) requirePositiveInt(field string) (int64, bool) {
	n, ok := c.requireNumber(field)
	if !ok {
		return 0, false
	}
	if n != float64(int64(n)) {
		c.fail(field, domain.CodeInvalidDataType, field+" must be an integer", n, "integer")
		return 0, false
	}
	i := int64(n)
	if i < 0 {
		c.fail(field, domain.CodeNegativeNumber, field+" must be positive", n, "integer>0")
		return 0, false
	}
	if i == 0 {
		c.fail(field, domain.CodeZeroValue, field+" must be positive", n, "integer>0")
		return 0, false
	}
	return i, true
}

// requirePositiveNumber validates a required field is strictly > 0.
func (c *fieldChecker) requirePositiveNumber(field string) (float64, bool) {
	n, ok := c.requireNumber(field)
	if !ok {
		return 0, false
	}
	if n < 0 {
		c.fail(field, domain.CodeNegativeNumber, field+" must be positive", n, "number>0")
		return 0, false
	}
	if n == 0 {
		c.fail(field, domain.CodeZeroValue, field+" must be positive", n, "number>0")
		return 0, false
	}
	return n, true
}

// requireInt fetches a required integer field, negative values allowed.
func (c *fieldChecker) requireInt(field string) (int64, bool) {
	n, ok := c.requireNumber(field)
	if !ok {
		return 0, false
	}
	if n != float64(int64(n)) {
		c.fail(field, domain.CodeInvalidDataType, field+" must be an integer", n, "integer")
		return 0, false
	}
	return int64(n), true
}

// requireEpochMillisTimestamp validates a required epoch-milliseconds
// integer field and checks it falls within the plausibility window.
func (c *fieldChecker) requireEpochMillisTimestamp(field string) (time.Time, bool) {
	ms, ok := c.requireInt(field)
	if !ok {
		return time.Time{}, false
	}
	t := time.UnixMilli(ms).UTC()
	if !inPlausibilityWindow(t) {
		c.fail(field, domain.CodeInvalidTimestamp, field+" is outside the plausible date range", ms, "epoch millis")
		return time.Time{}, false
	}
	return t, true
}

// requireISO8601Timestamp validates a required ISO-8601 string field,
// parses it, and checks the plausibility window.
func (c *fieldChecker) requireISO8601Timestamp(field string) (time.Time, bool) {
	s, ok := c.requireString(field)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		c.fail(field, domain.CodeInvalidTimestamp, field+" is not a valid ISO-8601 timestamp", s, "ISO-8601 string")
		return time.Time{}, false
	}
	t = t.UTC()
	if !inPlausibilityWindow(t) {
		c.fail(field, domain.CodeInvalidTimestamp, field+" is outside the plausible date range", s, "ISO-8601 string")
		return time.Time{}, false
	}
	return t, true
}

// requireRange validates a required numeric field falls within [lo, hi].
func (c *fieldChecker) requireRange(field string, lo, hi float64) (float64, bool) {
	n, ok := c.requireNumber(field)
	if !ok {
		return 0, false
	}
	if n < lo || n > hi {
		c.fail(field, domain.CodeInvalidValue, fmt.Sprintf("%s must be between %v and %v", field, lo, hi), n, "number")
		return 0, false
	}
	return n, true
}

// optionalMapping fetches an optional mapping field.
func (c *fieldChecker) optionalMapping(field string) (map[string]any, bool) {
	v, present := c.m[field]
	if !present || v == nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		c.fail(field, domain.CodeInvalidDataType, field+" must be an object", v, "mapping")
		return nil, false
	}
	return m, true
}
