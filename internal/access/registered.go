package access

import "github.com/kozaktomas/face-access/internal/database"

// RegisteredHasAccess is the registered-user access predicate: the status must be
// active and the zone one of the user's access zones.
func RegisteredHasAccess(u *database.RegisteredUser, zoneID string) bool {
	return u.Status != nil && u.Status.Name == StatusActive && u.HasZone(zoneID)
}

// RegisteredDecision is the outcome of evaluating a registered user.
type RegisteredDecision struct {
	Granted bool
	State   DenialState
}

// EvaluateRegistered decides access for a matched registered user and computes the
// next denial state.
func EvaluateRegistered(u *database.RegisteredUser, zoneID string) RegisteredDecision {
	granted := RegisteredHasAccess(u, zoneID)
	prev := DenialState{ConsecutiveDenied: u.ConsecutiveDeniedAccesses, AlertTriggered: u.AlertTriggered}
	return RegisteredDecision{
		Granted: granted,
		State:   ApplyDenialCounter(prev, granted, RegisteredDenialPolicy),
	}
}
