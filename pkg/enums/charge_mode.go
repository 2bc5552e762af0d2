package enums

import (
	"fmt"
	"strings"
)

// ChargeMode selects the Daraja transaction type used for the STK push.
type ChargeMode string

const (
	ChargeModePaybill ChargeMode = "paybill"
	ChargeModeTill    ChargeMode = "till"
)

var validChargeModes = []ChargeMode{
	ChargeModePaybill,
	ChargeModeTill,
}

// String implements fmt.Stringer.
func (c ChargeMode) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ChargeMode.
func (c ChargeMode) IsValid() bool {
	for _, candidate := range validChargeModes {
		if candidate == c {
			return true
		}
	}
	return false
}

// TransactionType maps the mode onto the Daraja TransactionType field.
func (c ChargeMode) TransactionType() string {
	if c == ChargeModeTill {
		return "CustomerBuyGoodsOnline"
	}
	return "CustomerPayBillOnline"
}

// ParseChargeMode converts raw input into a ChargeMode. Empty input selects paybill.
func ParseChargeMode(value string) (ChargeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ChargeModePaybill, nil
	}
	for _, candidate := range validChargeModes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge mode %q", value)
}
