package models

// Status is the closed set of order lifecycle states. Transitions are driven
// off the adjacency table below rather than ad hoc string checks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPrinting  Status = "printing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions is the lifecycle adjacency table. Terminal states have no
// outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPrinting, StatusCancelled},
	StatusPrinting:  {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s permits no further transitions.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
