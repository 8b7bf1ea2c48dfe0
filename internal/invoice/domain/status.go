package domain

// Status represents the invoice review state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// AllowedTransitions is the closed status machine. Approved and rejected
// invoices are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending: {
		StatusPending,
		StatusApproved,
		StatusRejected,
	},
	StatusApproved: {},
	StatusRejected: {},
}

// ParseStatus reports whether value is one of the known statuses.
func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	_, ok := AllowedTransitions[status]
	return status, ok
}

func (s Status) String() string { return string(s) }

// CanMutate reports whether an invoice currently in s may be updated.
func (s Status) CanMutate() bool {
	return len(AllowedTransitions[s]) > 0
}

// CanTransition checks if a move from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range AllowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// GuardUpdate rejects any update of an invoice that is no longer pending,
// whatever the payload asks for.
func GuardUpdate(current Status) error {
	if current.CanMutate() {
		return nil
	}
	return NewValidationError(Violation{Field: FieldStatus, Message: MsgOnlyPendingUpdatable})
}
