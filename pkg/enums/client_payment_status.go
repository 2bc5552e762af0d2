package enums

// ClientPaymentStatus is the status reported to the polling client.
type ClientPaymentStatus string

const (
	ClientPaymentStatusPending    ClientPaymentStatus = "PENDING"
	ClientPaymentStatusProcessing ClientPaymentStatus = "PROCESSING"
	ClientPaymentStatusSuccess    ClientPaymentStatus = "SUCCESS"
	ClientPaymentStatusFailed     ClientPaymentStatus = "FAILED"
)

// String implements fmt.Stringer.
func (c ClientPaymentStatus) String() string {
	return string(c)
}
