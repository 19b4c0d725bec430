package validation

import "github.com/arkbound/orderfeed/internal/feed/domain"

// PartnerBValidator checks the Partner B payload shape: camelCase-ish
// abbreviated keys, ISO-8601 string timestamp, tax rate expressed as a
// percentage [0,100].
type PartnerBValidator struct{}

func (PartnerBValidator) Validate(raw any) ValidationResult {
	m, rootErr := asMapping(raw)
	if rootErr != nil {
		return ValidationResult{Errors: []FieldError{*rootErr}}
	}

	c := &fieldChecker{m: m}

	transactionID, _ := c.requireString("transactionId")
	itemCode, _ := c.requireString("itemCode")
	clientID, _ := c.requireString("clientId")
	qty, _ := c.requirePositiveInt("qty")
	price, _ := c.requirePositiveNumber("price")
	tax, _ := c.requireRange("tax", 0, 100)
	purchaseTime, _ := c.requireISO8601Timestamp("purchaseTime")
	notes, _ := c.optionalString("notes")

	if len(c.errors) > 0 {
		return ValidationResult{Errors: c.errors}
	}

	return ValidationResult{
		Input: domain.PartnerBInput{
			TransactionID: transactionID,
			ItemCode:      itemCode,
			ClientID:      clientID,
			Qty:           qty,
			Price:         price,
			Tax:           tax,
			PurchaseTime:  purchaseTime.Format("2006-01-02T15:04:05.000Z"),
			Notes:         notes,
		},
	}
}
