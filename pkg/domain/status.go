package domain

// ProjectStatus is a state of the project workflow.
type ProjectStatus string

// Workflow states in chain order.
const (
	StatusDraft            ProjectStatus = "DRAFT"
	StatusQuoted           ProjectStatus = "QUOTED"
	StatusOfferSent        ProjectStatus = "OFFER_SENT"
	StatusOrderConfirmed   ProjectStatus = "ORDER_CONFIRMED"
	StatusInProduction     ProjectStatus = "IN_PRODUCTION"
	StatusReadyForDelivery ProjectStatus = "READY_FOR_DELIVERY"
	StatusDelivered        ProjectStatus = "DELIVERED"
	StatusClosed           ProjectStatus = "CLOSED"
)

var workflowChain = []ProjectStatus{
	StatusDraft,
	StatusQuoted,
	StatusOfferSent,
	StatusOrderConfirmed,
	StatusInProduction,
	StatusReadyForDelivery,
	StatusDelivered,
	StatusClosed,
}

// WorkflowStatuses returns the workflow states in chain order.
func WorkflowStatuses() []ProjectStatus {
	return append([]ProjectStatus(nil), workflowChain...)
}

// Index returns the position of s in the chain, or -1 for unknown values.
func (s ProjectStatus) Index() int {
	for i, candidate := range workflowChain {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known workflow state.
func (s ProjectStatus) Valid() bool { return s.Index() >= 0 }

// Terminal reports whether s has no successor.
func (s ProjectStatus) Terminal() bool { return s == StatusClosed }

// Next returns the immediate successor of s.
func (s ProjectStatus) Next() (ProjectStatus, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(workflowChain) {
		return "", false
	}
	return workflowChain[idx+1], true
}

// AtLeast reports whether s is at or after other in the chain.
func (s ProjectStatus) AtLeast(other ProjectStatus) bool {
	idx, otherIdx := s.Index(), other.Index()
	return idx >= 0 && otherIdx >= 0 && idx >= otherIdx
}

// Amendable reports whether post-freeze amendments are accepted in s.
func (s ProjectStatus) Amendable() bool {
	switch s {
	case StatusOrderConfirmed, StatusInProduction, StatusReadyForDelivery:
		return true
	}
	return false
}
