package access

import (
	"strings"
	"time"

	"github.com/kozaktomas/face-access/internal/constants"
	"github.com/kozaktomas/face-access/internal/database"
)

// ObservedVerdict is the result of evaluating an observed user on a match.
type ObservedVerdict int

const (
	VerdictGranted ObservedVerdict = iota
	VerdictBlocked
	VerdictExpired
	VerdictInReview
	VerdictInvalidStatus
)

// Granted reports whether the verdict grants access.
func (v ObservedVerdict) Granted() bool {
	return v == VerdictGranted
}

func (v ObservedVerdict) String() string {
	switch v {
	case VerdictGranted:
		return "granted"
	case VerdictBlocked:
		return "blocked"
	case VerdictExpired:
		return "expired"
	case VerdictInReview:
		return "in_review"
	default:
		return "invalid_status"
	}
}

// EvaluateObserved applies the observed-user rules in order: active and unexpired
// grants, then blocked, expired, in review, and anything else denies.
func (c *StatusCatalog) EvaluateObserved(u *database.ObservedUser, now time.Time) ObservedVerdict {
	switch {
	case u.StatusID == c.ActiveTemporalID && !u.ExpiresAt.Before(now):
		return VerdictGranted
	case u.StatusID == c.BlockedID:
		return VerdictBlocked
	case u.ExpiresAt.Before(now) || u.StatusID == c.ExpiredID:
		return VerdictExpired
	case u.StatusID == c.InReviewAdminID:
		return VerdictInReview
	default:
		return VerdictInvalidStatus
	}
}

// ApplyObservedMatch computes the record after an observed-match event without
// touching u. Every event bumps the access count, refreshes LastSeenAt and adds the
// zone. An expired verdict moves the status to expired.
func (c *StatusCatalog) ApplyObservedMatch(u *database.ObservedUser, zoneID string, now time.Time) (*database.ObservedUser, ObservedVerdict) {
	verdict := c.EvaluateObserved(u, now)

	next := u.Clone()
	next.LastSeenAt = now
	next.AccessCount = u.AccessCount + 1
	next.LastAccessedZones = AddZone(u.LastAccessedZones, zoneID)

	state := ApplyDenialCounter(
		DenialState{ConsecutiveDenied: u.ConsecutiveDeniedAccesses, AlertTriggered: u.AlertTriggered},
		verdict.Granted(),
		DenialPolicy{ForceAlert: u.StatusID == c.BlockedID},
	)
	next.ConsecutiveDeniedAccesses = state.ConsecutiveDenied
	next.AlertTriggered = state.AlertTriggered

	if verdict == VerdictExpired {
		next.StatusID = c.ExpiredID
	}
	return next, verdict
}

// AddZone returns zones with zone added once. Blank zones are ignored.
func AddZone(zones []string, zone string) []string {
	out := make([]string, 0, len(zones)+1)
	seen := make(map[string]struct{}, len(zones)+1)
	for _, z := range zones {
		if strings.TrimSpace(z) == "" {
			continue
		}
		if _, ok := seen[z]; ok {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	if strings.TrimSpace(zone) != "" {
		if _, ok := seen[zone]; !ok {
			out = append(out, zone)
		}
	}
	return out
}

// NewObservedUser builds the initial record for an unrecognized face: temporary
// access for constants.ObservedAccessTTL, one access, no denials.
func (c *StatusCatalog) NewObservedUser(embedding []float32, zoneID string, now time.Time) *database.ObservedUser {
	return &database.ObservedUser{
		Embedding:         append([]float32(nil), embedding...),
		FirstSeenAt:       now,
		LastSeenAt:        now,
		AccessCount:       1,
		LastAccessedZones: AddZone(nil, zoneID),
		StatusID:          c.ActiveTemporalID,
		ExpiresAt:         now.Add(constants.ObservedAccessTTL),
	}
}

// Block forces the status to blocked.
func (c *StatusCatalog) Block(u *database.ObservedUser) {
	u.StatusID = c.BlockedID
}

// Extend restores temporary access for another constants.ObservedAccessTTL from now.
func (c *StatusCatalog) Extend(u *database.ObservedUser, now time.Time) {
	u.StatusID = c.ActiveTemporalID
	u.ExpiresAt = now.Add(constants.ObservedAccessTTL)
}
