package enums

// Currency represents the denomination of a charge.
type Currency string

const (
	CurrencyKES Currency = "KES"
)

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	return c == CurrencyKES
}
