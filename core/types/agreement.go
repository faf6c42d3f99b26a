package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Agreement captures the static terms of a three-party contract: pledge,
// exchange rate, fulfilment curve, and expiration (glossary). The schema
// beyond ExpirationTimestamp is intentionally loose — spec §4.3 only
// requires that Validate succeed and that checkExpiration can read the
// expiration timestamp back out.
type Agreement struct {
	Pledge              json.RawMessage `json:"pledge,omitempty"`
	ExchangeRate        json.RawMessage `json:"exchangeRate,omitempty"`
	FulfillmentCurve    json.RawMessage `json:"fulfillmentCurve,omitempty"`
	ExpirationTimestamp uint64          `json:"expirationTimestamp"`
	Ref                 string          `json:"ref,omitempty"`
}

// Validate checks the shape-level invariants ContractCreation.semantic_validate
// relies on (spec §4.3).
func (a Agreement) Validate() error {
	if a.ExpirationTimestamp == 0 {
		return fmt.Errorf("agreement: expirationTimestamp must be set")
	}
	if a.Ref != "" {
		if _, err := uuid.Parse(a.Ref); err != nil {
			return fmt.Errorf("agreement: invalid ref %q: %w", a.Ref, err)
		}
	}
	return nil
}

// ParseAgreement decodes an Agreement from its canonical JSON bytes.
func ParseAgreement(raw json.RawMessage) (Agreement, error) {
	var a Agreement
	if err := json.Unmarshal(raw, &a); err != nil {
		return Agreement{}, fmt.Errorf("agreement: malformed: %w", err)
	}
	return a, nil
}
