package enums

// TransactionStatus mirrors the billing platform's usage charge statuses.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusSuccess,
	TransactionStatusFailed,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
// Unknown platform statuses default to pending so a novel response value
// never blocks ledger persistence.
func ParseTransactionStatus(value string) TransactionStatus {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate
		}
	}
	return TransactionStatusPending
}
