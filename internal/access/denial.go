package access

import "github.com/kozaktomas/face-access/internal/constants"

// DenialState is the consecutive-denial counter and alert flag carried by both user kinds.
type DenialState struct {
	ConsecutiveDenied int
	AlertTriggered    bool
}

// DenialPolicy parameterizes ApplyDenialCounter for a user kind.
type DenialPolicy struct {
	// ForceAlert raises the alert on any denial (blocked observed users).
	ForceAlert bool
	// KeepAlertBelowThreshold keeps the previous alert flag on a denial that does not
	// reach the threshold. Registered users behave this way; observed users recompute it.
	KeepAlertBelowThreshold bool
}

// RegisteredDenialPolicy is the policy applied to registered users.
var RegisteredDenialPolicy = DenialPolicy{KeepAlertBelowThreshold: true}

// ApplyDenialCounter is the single denial-counter transition. A grant resets the
// counter and clears the alert. A denial increments the counter by one and raises the
// alert once the counter reaches constants.DeniedAttemptsThreshold.
func ApplyDenialCounter(prev DenialState, granted bool, policy DenialPolicy) DenialState {
	if granted {
		return DenialState{}
	}

	next := DenialState{ConsecutiveDenied: max(prev.ConsecutiveDenied, 0) + 1}
	switch {
	case next.ConsecutiveDenied >= constants.DeniedAttemptsThreshold || policy.ForceAlert:
		next.AlertTriggered = true
	case policy.KeepAlertBelowThreshold:
		next.AlertTriggered = prev.AlertTriggered
	}
	return next
}
