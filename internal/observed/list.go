package observed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-access/internal/constants"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/facematch"
)

// Dashboard filters.
const (
	FilterPendingReview  = "pendingReview"
	FilterHighRisk       = "highRisk"
	FilterActiveTemporal = "activeTemporal"
	FilterExpired        = "expired"
)

// ErrInvalidFilter is returned for unknown filter types.
var ErrInvalidFilter = errors.New("invalid filter type")

// ListQuery selects a page of observed users.
type ListQuery struct {
	Page       int
	PageSize   int
	SearchTerm string
	FilterType string
}

// ListResult is one dashboard page plus the card counts.
type ListResult struct {
	Users               []UserView `json:"users"`
	TotalCount          int        `json:"totalCount"`
	AbsoluteTotalCount  int        `json:"absoluteTotalCount"`
	PendingReviewCount  int        `json:"pendingReviewCount"`
	HighRiskCount       int        `json:"highRiskCount"`
	ActiveTemporalCount int        `json:"activeTemporalCount"`
	ExpiredCount        int        `json:"expiredCount"`
}

// UserView is an observed user as shown on the dashboard.
type UserView struct {
	ID                        string                 `json:"id"`
	FirstSeen                 time.Time              `json:"firstSeen"`
	LastSeen                  time.Time              `json:"lastSeen"`
	TempAccesses              int                    `json:"tempAccesses"`
	AccessedZones             []database.CatalogItem `json:"accessedZones"`
	Status                    database.CatalogItem   `json:"status"`
	AIAction                  *string                `json:"aiAction"`
	FaceImage                 *string                `json:"faceImage"`
	AlertTriggered            bool                   `json:"alertTriggered"`
	ExpiresAt                 time.Time              `json:"expiresAt"`
	PotentialMatchUserID      *string                `json:"potentialMatchUserId"`
	ConsecutiveDeniedAccesses int                    `json:"consecutiveDeniedAccesses"`
}

func (m *Manager) filterFor(filterType string) (database.ObservedFilter, error) {
	switch filterType {
	case "":
		return database.ObservedFilter{}, nil
	case FilterPendingReview:
		return database.ObservedFilter{
			StatusID:         m.statuses.ActiveTemporalID,
			MinAccessCountGT: constants.PendingReviewAccessCount,
		}, nil
	case FilterHighRisk:
		return database.ObservedFilter{AlertOnly: true, ExcludeStatusID: m.statuses.BlockedID}, nil
	case FilterActiveTemporal:
		return database.ObservedFilter{StatusID: m.statuses.ActiveTemporalID}, nil
	case FilterExpired:
		return database.ObservedFilter{StatusID: m.statuses.ExpiredID}, nil
	default:
		return database.ObservedFilter{}, fmt.Errorf("%w: %s", ErrInvalidFilter, filterType)
	}
}

// List returns a page of observed users, most recently seen first. The search term
// is matched against the ID, AI action, status name and zone names, ignoring case
// and diacritics.
func (m *Manager) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	filter, err := m.filterFor(q.FilterType)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(q.Page, q.PageSize)

	res := &ListResult{Users: []UserView{}}
	counts := []struct {
		dst    *int
		filter string
	}{
		{&res.AbsoluteTotalCount, ""},
		{&res.PendingReviewCount, FilterPendingReview},
		{&res.HighRiskCount, FilterHighRisk},
		{&res.ActiveTemporalCount, FilterActiveTemporal},
		{&res.ExpiredCount, FilterExpired},
	}
	for _, c := range counts {
		f, _ := m.filterFor(c.filter)
		n, err := m.store.CountObservedUsers(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("count observed users: %w", err)
		}
		*c.dst = n
	}

	zones, err := m.zoneNames(ctx)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	if q.SearchTerm == "" {
		res.TotalCount = res.AbsoluteTotalCount
		if q.FilterType != "" {
			if res.TotalCount, err = m.store.CountObservedUsers(ctx, filter); err != nil {
				return nil, fmt.Errorf("count observed users: %w", err)
			}
		}
		filter.Limit = pageSize
		filter.Offset = offset
		users, err := m.store.ListObservedUsers(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list observed users: %w", err)
		}
		for i := range users {
			res.Users = append(res.Users, m.view(&users[i], zones))
		}
		return res, nil
	}

	// Search needs the resolved names, so it runs over the whole filtered set.
	users, err := m.store.ListObservedUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list observed users: %w", err)
	}
	var matched []UserView
	for i := range users {
		v := m.view(&users[i], zones)
		if v.matches(q.SearchTerm) {
			matched = append(matched, v)
		}
	}
	res.TotalCount = len(matched)
	if offset < len(matched) {
		end := min(offset+pageSize, len(matched))
		res.Users = append(res.Users, matched[offset:end]...)
	}
	return res, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = constants.DefaultHandlerPageSize
	}
	if pageSize > constants.MaxHandlerPageSize {
		pageSize = constants.MaxHandlerPageSize
	}
	return page, pageSize
}

func (m *Manager) zoneNames(ctx context.Context) (map[string]string, error) {
	zones, err := m.catalog.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("load zone catalog: %w", err)
	}
	names := make(map[string]string, len(zones))
	for _, z := range zones {
		names[z.ID] = z.Name
	}
	return names, nil
}

func (m *Manager) view(u *database.ObservedUser, zones map[string]string) UserView {
	status := database.CatalogItem{ID: u.StatusID, Name: "Unknown"}
	if name, ok := m.statuses.Name(u.StatusID); ok {
		status.Name = name
	}

	accessed := make([]database.CatalogItem, 0, len(u.LastAccessedZones))
	for _, id := range u.LastAccessedZones {
		name, ok := zones[id]
		if !ok {
			name = unknownZoneName(id)
		}
		accessed = append(accessed, database.CatalogItem{ID: id, Name: name})
	}

	return UserView{
		ID:                        u.ID,
		FirstSeen:                 u.FirstSeenAt,
		LastSeen:                  u.LastSeenAt,
		TempAccesses:              u.AccessCount,
		AccessedZones:             accessed,
		Status:                    status,
		AIAction:                  u.AIAction,
		FaceImage:                 u.FaceImageURL,
		AlertTriggered:            u.AlertTriggered,
		ExpiresAt:                 u.ExpiresAt,
		PotentialMatchUserID:      u.PotentialMatchUserID,
		ConsecutiveDeniedAccesses: u.ConsecutiveDeniedAccesses,
	}
}

func unknownZoneName(id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return fmt.Sprintf("Unknown Zone (%s...)", short)
}

func (v UserView) matches(term string) bool {
	fields := []string{v.ID, v.Status.Name}
	if v.AIAction != nil {
		fields = append(fields, *v.AIAction)
	}
	for _, z := range v.AccessedZones {
		fields = append(fields, z.Name)
	}
	return facematch.MatchesSearch(term, fields...)
}
