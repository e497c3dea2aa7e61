package trials

import (
	"github.com/ctsr-project/ctsr/pkg/apierrors"
)

// LinkStatus is the assignment status of a trial-system link.
type LinkStatus string

const (
	LinkActive              LinkStatus = "ACTIVE"
	LinkPendingConfirmation LinkStatus = "PENDING_CONFIRMATION"
	LinkConfirmed           LinkStatus = "CONFIRMED"
	LinkReplaced            LinkStatus = "REPLACED"
	LinkLocked              LinkStatus = "LOCKED"
)

// LiveStatuses are the statuses that count toward the one-live-link-per-pair
// invariant. REPLACED and LOCKED links are terminal and do not.
var LiveStatuses = []LinkStatus{LinkActive, LinkPendingConfirmation, LinkConfirmed}

// ConfirmableStatuses are the statuses included when a confirmation is
// submitted for a trial.
var ConfirmableStatuses = []LinkStatus{LinkActive, LinkPendingConfirmation}

// TransitionRule defines one allowed link status transition.
type TransitionRule struct {
	From LinkStatus
	To   LinkStatus
}

// defaultTransitions is the complete set of legal link transitions.
// CONFIRMED links re-enter the cycle when the next confirmation opens, so
// CONFIRMED -> PENDING_CONFIRMATION collapses the implicit pass through
// ACTIVE. ACTIVE -> CONFIRMED covers links created after the cycle opened.
var defaultTransitions = []TransitionRule{
	{From: LinkActive, To: LinkPendingConfirmation},
	{From: LinkConfirmed, To: LinkPendingConfirmation},
	{From: LinkConfirmed, To: LinkActive},
	{From: LinkPendingConfirmation, To: LinkConfirmed},
	{From: LinkActive, To: LinkConfirmed},
	{From: LinkActive, To: LinkReplaced},
	{From: LinkConfirmed, To: LinkReplaced},
	{From: LinkActive, To: LinkLocked},
	{From: LinkPendingConfirmation, To: LinkLocked},
	{From: LinkConfirmed, To: LinkLocked},
}

// LinkMachine validates link status transitions. REPLACED and LOCKED are
// terminal: no rule leads out of them.
type LinkMachine struct {
	transitions []TransitionRule
}

// NewLinkMachine creates a machine with the default rules.
func NewLinkMachine() *LinkMachine {
	return &LinkMachine{transitions: defaultTransitions}
}

// ValidateTransition checks whether from -> to is legal. Illegal pairs
// produce an INVALID_STATE error.
func (m *LinkMachine) ValidateTransition(from, to LinkStatus) error {
	if from == to {
		return nil
	}
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return apierrors.InvalidState("link transition %s -> %s is not allowed", from, to)
}

// IsTerminal reports whether a link status admits no further transitions.
func (m *LinkMachine) IsTerminal(status LinkStatus) bool {
	for _, t := range m.transitions {
		if t.From == status {
			return false
		}
	}
	return true
}

// trialAcceptsLinkChanges reports whether a trial's status permits link
// mutations. Locked and closed trials are frozen.
func trialAcceptsLinkChanges(status TrialStatus) bool {
	return status != TrialDBLocked && status != TrialClosed
}
