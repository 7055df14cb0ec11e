package facematch

import "github.com/kozaktomas/face-access/internal/constants"

// Outcome is the classifier decision for a capture. The string values are recorded
// as the match status of audit log entries.
type Outcome string

const (
	OutcomeRegisteredMatch Outcome = "registered_match"
	OutcomeObservedUpdate  Outcome = "observed_update"
	OutcomeNewObserved     Outcome = "new_observed"
)

// Similarity maps an L2 distance onto the [0,1] confidence shown to operators.
// 1 - d/2 is the established display convention and not a probability.
func Similarity(distance float64) float64 {
	return 1 - distance/2
}

// IsRegisteredMatch reports whether a registered candidate is close enough to resolve
// the capture to that identity.
func IsRegisteredMatch(distance float64) bool {
	return distance <= constants.RegisteredMatchThreshold
}

// IsObservedUpdate reports whether an observed candidate is close enough to be
// treated as the same visitor.
func IsObservedUpdate(distance float64) bool {
	return distance <= constants.ObservedUpdateThreshold
}

// Classify decides between the three outcomes given the closest candidate of each
// population. A nil match means the population had no candidate.
func Classify(registered, observed *Match) Outcome {
	if registered != nil && IsRegisteredMatch(registered.Distance) {
		return OutcomeRegisteredMatch
	}
	if observed != nil && IsObservedUpdate(observed.Distance) {
		return OutcomeObservedUpdate
	}
	return OutcomeNewObserved
}
