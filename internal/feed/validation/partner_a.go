package validation

import "github.com/arkbound/orderfeed/internal/feed/domain"

// PartnerAValidator checks the Partner A payload shape: camelCase keys,
// epoch-millisecond timestamp, tax rate expressed as a fraction [0,1].
type PartnerAValidator struct{}

func (PartnerAValidator) Validate(raw any) ValidationResult {
	m, rootErr := asMapping(raw)
	if rootErr != nil {
		return ValidationResult{Errors: []FieldError{*rootErr}}
	}

	c := &fieldChecker{m: m}

	orderID, _ := c.requireString("orderId")
	skuID, _ := c.requireString("skuId")
	customerID, _ := c.requireString("customerId")
	quantity, _ := c.requirePositiveInt("quantity")
	unitPrice, _ := c.requirePositiveNumber("unitPrice")
	taxRate, _ := c.requireRange("taxRate", 0, 1)
	txTime, _ := c.requireEpochMillisTimestamp("transactionTimeMs")
	metadata, _ := c.optionalMapping("metadata")

	if len(c.errors) > 0 {
		return ValidationResult{Errors: c.errors}
	}

	return ValidationResult{
		Input: domain.PartnerAInput{
			OrderID:           orderID,
			SkuID:             skuID,
			CustomerID:        customerID,
			Quantity:          quantity,
			UnitPrice:         unitPrice,
			TaxRate:           taxRate,
			TransactionTimeMs: txTime.UnixMilli(),
			Metadata:          metadata,
		},
	}
}
