package observer

import "time"

// Operations reported in Event.Operation.
const (
	OpLogin     = "login"
	OpLogout    = "logout"
	OpQuery     = "query"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpBatch     = "batch"
	OpAggregate = "aggregate"
)

// Outcomes reported in Event.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event describes one completed gateway operation.
type Event struct {
	Time       time.Time
	Operation  string
	Collection string
	// DocumentID is set for single-document mutations.
	DocumentID string
	OrgID      string
	UserID     string
	Outcome    string
	// ErrorKind is the error classification for failures, e.g. "validation".
	ErrorKind string
	Duration  time.Duration
	// Items is the number of documents touched or returned.
	Items int
}

// Succeeded reports whether the operation completed without error.
func (e Event) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}

// IsMutation reports whether the event records a committed write.
func (e Event) IsMutation() bool {
	switch e.Operation {
	case OpCreate, OpUpdate, OpDelete:
		return e.Succeeded()
	}
	return false
}
