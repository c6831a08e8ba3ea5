// Package requisition manages the bank-link consent grant held with the
// open-banking aggregator. A requisition is an external resource that
// moves from created, through user authentication, to linked or to a
// terminal failure state; this package keeps the local record in step
// with the aggregator and resolves a usable bank account id from it.
package requisition

import "time"

// Validity is the local verdict on a requisition. A freshly created
// requisition is Unknown until the aggregator reports it linked (Valid)
// or expired/rejected/suspended (Invalid).
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Requisition is one bank-link consent grant. Rows are never deleted;
// invalidated requisitions stay behind for audit and aggregator-side
// purging. At most one requisition has Validity != Invalid at a time.
type Requisition struct {
	ID            string
	RequisitionID string // aggregator-issued id
	CreatedOn     time.Time
	LastSyncOn    *time.Time
	Validity      Validity
}

// Authorization is a newly created aggregator-side consent request.
type Authorization struct {
	RequisitionID string
	ConsentLink   string
}

// AuthorizationStatus is the aggregator's view of an existing requisition.
type AuthorizationStatus struct {
	Status      string // raw aggregator status code
	AccountIDs  []string
	ConsentLink string
}

// Aggregator status codes, as reported by the consent API.
const (
	statusCreated           = "CR"
	statusGivingConsent     = "GC"
	statusUndergoingAuth    = "UA"
	statusSelectingAccounts = "SA"
	statusGrantingAccess    = "GA"
	statusLinked            = "LN"
	statusExpired           = "EX"
	statusRejected          = "RJ"
	statusSuspended         = "SU"
)

type statusBucket int

const (
	bucketUnknown statusBucket = iota
	bucketPending
	bucketLinked
	bucketFailed
)

// bucketOf collapses the aggregator status codes into the four outcomes
// the lifecycle acts on. Unrecognized codes stay in bucketUnknown and are
// never guessed at.
func bucketOf(status string) statusBucket {
	switch status {
	case statusCreated, statusGivingConsent, statusUndergoingAuth, statusSelectingAccounts, statusGrantingAccess:
		return bucketPending
	case statusLinked:
		return bucketLinked
	case statusExpired, statusRejected, statusSuspended:
		return bucketFailed
	default:
		return bucketUnknown
	}
}
