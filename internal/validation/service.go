// Package validation decides whether a captured face may enter a zone. Every
// request resolves the face to a registered user, an existing observed user or a
// new observed user, and writes exactly one audit log entry.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-access/internal/access"
	"github.com/kozaktomas/face-access/internal/ai"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/facematch"
	"github.com/kozaktomas/face-access/internal/logging"
)

// ErrUploadDisabled is the upload warning when no image store is configured.
var ErrUploadDisabled = errors.New("image upload is not configured")

// ImageUploader stores a capture under the owner's ID and returns its public URL.
type ImageUploader interface {
	UploadFaceImage(ctx context.Context, id string, data []byte) (string, error)
}

// Deps are the collaborators of a Service. Uploader and Suggester are optional.
type Deps struct {
	Faces     database.FaceReader
	Users     database.UserWriter
	Observed  database.ObservedWriter
	Catalog   database.CatalogReader
	Logs      database.LogWriter
	Statuses  *access.StatusCatalog
	Uploader  ImageUploader
	Suggester ai.Suggester
	Logger    logging.Logger
	Now       func() time.Time
}

// Service runs the validation pipeline.
type Service struct {
	faces     database.FaceReader
	users     database.UserWriter
	observed  database.ObservedWriter
	catalog   database.CatalogReader
	logs      database.LogWriter
	statuses  *access.StatusCatalog
	uploader  ImageUploader
	suggester ai.Suggester
	log       logging.Logger
	now       func() time.Time
}

// NewService checks the required collaborators and builds a Service.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Faces == nil:
		return nil, errors.New("validation: face store is required")
	case d.Users == nil:
		return nil, errors.New("validation: user store is required")
	case d.Observed == nil:
		return nil, errors.New("validation: observed store is required")
	case d.Catalog == nil:
		return nil, errors.New("validation: catalog is required")
	case d.Logs == nil:
		return nil, errors.New("validation: log store is required")
	case d.Statuses == nil:
		return nil, fmt.Errorf("validation: %w", access.ErrMissingStatus)
	}

	s := &Service{
		faces:     d.Faces,
		users:     d.Users,
		observed:  d.Observed,
		catalog:   d.Catalog,
		logs:      d.Logs,
		statuses:  d.Statuses,
		uploader:  d.Uploader,
		suggester: d.Suggester,
		log:       d.Logger,
		now:       d.Now,
	}
	if s.log == nil {
		s.log = logging.Nop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return s, nil
}

// Request is the body of a validation call. FaceEmbedding stays raw so malformed
// input can be rejected with a client error instead of a decode failure.
type Request struct {
	FaceEmbedding json.RawMessage `json:"faceEmbedding"`
	ZoneID        string          `json:"zoneId"`
	ImageData     string          `json:"imageData,omitempty"`
	CameraID      string          `json:"cameraId,omitempty"`
}

// Validate runs one request end to end. It never returns an error: failures become
// error responses, and the audit log entry is written on every path.
func (s *Service) Validate(ctx context.Context, req Request) (res Result) {
	entry := &database.ValidationLogEntry{
		UserType:        database.UserTypeUnknown,
		Decision:        database.DecisionUnknown,
		Reason:          "function_started",
		RequestedZoneID: optional(req.ZoneID),
		CameraID:        optional(req.CameraID),
	}

	defer func() {
		if r := recover(); r != nil {
			res = s.unhandled(ctx, entry, fmt.Errorf("panic: %v", r))
		}
		s.writeLog(ctx, entry)
	}()

	out, err := s.validate(ctx, req, entry)
	if err != nil {
		return s.unhandled(ctx, entry, err)
	}
	return out
}

func (s *Service) validate(ctx context.Context, req Request, entry *database.ValidationLogEntry) (Result, error) {
	var raw []float64
	if len(req.FaceEmbedding) > 0 {
		if err := json.Unmarshal(req.FaceEmbedding, &raw); err != nil {
			raw = nil
		}
	}
	entry.VectorAttempted = raw

	embedding, err := facematch.ValidateEmbedding(raw)
	if err != nil {
		entry.Decision = database.DecisionError
		entry.Reason = invalidEmbeddingMessage
		entry.MatchStatus = MatchStatusInvalidInput
		return clientErrorResult(), nil
	}

	image := s.decodeImage(ctx, req.ImageData)

	regMatch, regFound, regErr := s.faces.FindClosestFace(ctx, embedding)
	if regErr != nil {
		s.log.Warn(ctx, "registered face lookup failed", "error", regErr)
	}
	var registered *facematch.Match
	if regErr == nil && regFound {
		registered = &regMatch
	}
	if facematch.Classify(registered, nil) == facematch.OutcomeRegisteredMatch {
		return s.registeredMatch(ctx, entry, regMatch, req.ZoneID)
	}

	obsMatch, obsFound, obsErr := s.observed.FindClosestObserved(ctx, embedding)
	if obsErr != nil {
		s.log.Warn(ctx, "observed face lookup failed", "error", obsErr)
		return s.noMatch(entry), nil
	}
	var observed *facematch.Match
	if obsFound {
		observed = &obsMatch
	}

	switch facematch.Classify(nil, observed) {
	case facematch.OutcomeObservedUpdate:
		return s.observedMatch(ctx, entry, obsMatch, req.ZoneID, image)
	default:
		if regErr != nil {
			// The capture may belong to a registered user we could not search.
			return s.noMatch(entry), nil
		}
		return s.newObserved(ctx, entry, embedding, req.ZoneID, image)
	}
}

func (s *Service) registeredMatch(ctx context.Context, entry *database.ValidationLogEntry, m facematch.Match, zoneID string) (Result, error) {
	similarity := m.Similarity()
	entry.UserID = &m.ID
	entry.UserType = database.UserTypeRegistered
	entry.ConfidenceScore = &similarity

	user, err := s.users.GetUser(ctx, m.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		entry.Decision = database.DecisionError
		entry.Reason = "Failed to fetch registered user details: " + err.Error()
		entry.MatchStatus = MatchStatusDetailsError
		return Result{
			Status: http.StatusInternalServerError,
			Body: Response{
				User: placeholderUser(m.ID, "Error fetching details", database.UserTypeRegistered, similarity,
					database.CatalogItem{ID: "error", Name: "Error"}),
				Type:    TypeRegisteredDetailsError,
				Message: "Failed to fetch registered user details.",
				Error:   err.Error(),
			},
		}, nil
	}
	if user == nil {
		entry.Decision = database.DecisionError
		entry.Reason = fmt.Sprintf("Registered user ID %s found by embedding, but details were null.", m.ID)
		entry.MatchStatus = MatchStatusDetailsNull
		return Result{
			Status: http.StatusInternalServerError,
			Body: Response{
				User: placeholderUser(m.ID, "Error retrieving details", database.UserTypeRegistered, similarity,
					database.CatalogItem{ID: "error", Name: "Error"}),
				Type:    TypeRegisteredRetrievalError,
				Message: "Could not retrieve full details for registered user.",
				Error:   entry.Reason,
			},
		}, nil
	}

	decision := access.EvaluateRegistered(user, zoneID)
	if err := s.users.UpdateDenialState(ctx, user.ID, decision.State.ConsecutiveDenied, decision.State.AlertTriggered); err != nil {
		s.log.Error(ctx, "failed to update registered user denial state", "user_id", user.ID, "error", err)
	}

	status := database.CatalogItem{ID: "unknown", Name: "Unknown"}
	if user.Status != nil {
		status = *user.Status
	}
	zones := append([]database.CatalogItem{}, user.AccessZones...)

	body := Response{
		User: UserDetails{
			ID:                   user.ID,
			FullName:             strPtr(user.FullName),
			UserType:             database.UserTypeRegistered,
			HasAccess:            decision.Granted,
			Similarity:           similarity,
			RoleDetails:          user.Role,
			StatusDetails:        status,
			ZonesAccessedDetails: zones,
		},
	}

	entry.Result = decision.Granted
	entry.MatchStatus = MatchStatusRegistered
	if decision.Granted {
		entry.Decision = database.DecisionGranted
		entry.Reason = registeredGrantedReasonPrefix + zoneID
		body.Type = TypeRegisteredMatched
		body.Message = "Access Granted for Registered User."
	} else {
		entry.Decision = database.DecisionDenied
		entry.Reason = fmt.Sprintf(registeredDeniedReasonTemplate,
			zoneID, status.Name, user.HasZone(zoneID), decision.State.ConsecutiveDenied, decision.State.AlertTriggered)
		body.Type = TypeRegisteredDenied
		body.Message = "Access Denied for Registered User."
	}

	s.log.Info(ctx, "registered user matched",
		"user_id", user.ID, "zone_id", zoneID, "granted", decision.Granted, "distance", m.Distance)
	return Result{Status: http.StatusOK, Body: body}, nil
}

func (s *Service) observedMatch(ctx context.Context, entry *database.ValidationLogEntry, m facematch.Match, zoneID string, image []byte) (Result, error) {
	similarity := m.Similarity()
	entry.ObservedUserID = &m.ID
	entry.UserType = database.UserTypeObserved
	entry.ConfidenceScore = &similarity

	stored, err := s.observed.GetObservedUser(ctx, m.ID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch observed user %s: %w", m.ID, err)
	}

	next, verdict := s.statuses.ApplyObservedMatch(stored, zoneID, s.now())
	zoneNames := s.zoneCatalog(ctx)

	if image != nil {
		if up := s.uploadImage(ctx, next.ID, image); up.IsOk() {
			next.FaceImageURL = &up.Value
		}

		sc := ai.SuggestionContext{
			Type:   ai.ContextExisting,
			UserID: next.ID,
			Zones:  zoneNames.names(next.LastAccessedZones),
		}
		if name, ok := s.statuses.Name(next.StatusID); ok {
			sc.Status = name
		}
		if next.StatusID != s.statuses.ExpiredID {
			expires := next.ExpiresAt
			sc.ExpiresAt = &expires
		}
		if sug := s.suggest(ctx, image, sc); sug.IsOk() && sug.Value != "" {
			next.AIAction = &sug.Value
		}
	}

	if err := s.observed.UpdateObservedUser(ctx, next); err != nil {
		return Result{}, fmt.Errorf("update observed user %s: %w", next.ID, err)
	}

	responseType, message, reason := observedVerdictText(verdict, zoneID, next.StatusID)
	entry.Result = verdict.Granted()
	entry.Decision = database.DecisionDenied
	if verdict.Granted() {
		entry.Decision = database.DecisionGranted
	}
	entry.Reason = fmt.Sprintf("%s. Consecutive denied attempts: %d. Alert triggered: %t",
		strings.TrimSuffix(reason, "."), next.ConsecutiveDeniedAccesses, next.AlertTriggered)
	entry.MatchStatus = responseType

	s.log.Info(ctx, "observed user matched",
		"observed_user_id", next.ID, "zone_id", zoneID, "verdict", verdict.String(), "distance", m.Distance)

	return Result{
		Status: http.StatusOK,
		Body: Response{
			User: UserDetails{
				ID:                   next.ID,
				UserType:             database.UserTypeObserved,
				HasAccess:            verdict.Granted(),
				Similarity:           similarity,
				StatusDetails:        s.statuses.Details(next.StatusID),
				ZonesAccessedDetails: zoneNames.details(next.LastAccessedZones),
				ObservedDetails:      observedDetails(next, similarity, m.Distance),
			},
			Type:    responseType,
			Message: message,
		},
	}, nil
}

func observedVerdictText(v access.ObservedVerdict, zoneID, statusID string) (responseType, message, reason string) {
	switch v {
	case access.VerdictGranted:
		return TypeObservedUpdated, "Access Granted (Observed User Updated).",
			"Observed user updated for zone: " + zoneID
	case access.VerdictBlocked:
		return TypeObservedDeniedBlocked, "Access Denied (Observed User Blocked).",
			"Access Denied: User is blocked."
	case access.VerdictExpired:
		return TypeObservedDeniedExpired, "Access Denied (Observed User Expired/Status Expired).",
			"Access Denied: Access expired or status is expired."
	case access.VerdictInReview:
		return TypeObservedDeniedOtherStatus, "Access Denied (User in Review).",
			"Access Denied: User is in review by admin."
	default:
		return TypeObservedDeniedOtherStatus, "Access Denied (Invalid Status).",
			fmt.Sprintf("Access Denied: Invalid status for access: %s.", statusID)
	}
}

func (s *Service) newObserved(ctx context.Context, entry *database.ValidationLogEntry, embedding []float32, zoneID string, image []byte) (Result, error) {
	if s.statuses.ActiveTemporalID == "" {
		return Result{}, fmt.Errorf("new observed user: %w: %s", access.ErrMissingStatus, access.StatusActiveTemporal)
	}

	u := s.statuses.NewObservedUser(embedding, zoneID, s.now())
	if image != nil {
		if sug := s.suggest(ctx, image, ai.SuggestionContext{Type: ai.ContextNew}); sug.IsOk() && sug.Value != "" {
			u.AIAction = &sug.Value
		}
	}

	if err := s.observed.CreateObservedUser(ctx, u); err != nil {
		return Result{}, fmt.Errorf("create observed user: %w", err)
	}

	if image != nil {
		if up := s.uploadImage(ctx, u.ID, image); up.IsOk() {
			u.FaceImageURL = &up.Value
			if err := s.observed.SetObservedFaceImage(ctx, u.ID, up.Value); err != nil {
				s.log.Warn(ctx, "failed to store observed face image url", "observed_user_id", u.ID, "error", err)
			}
		}
	}

	similarity := 1.0
	entry.ObservedUserID = &u.ID
	entry.UserType = database.UserTypeNewObserved
	entry.ConfidenceScore = &similarity
	entry.Result = true
	entry.Decision = database.DecisionGranted
	entry.Reason = newObservedReasonPrefix + zoneID
	entry.MatchStatus = TypeNewObserved

	s.log.Info(ctx, "new observed user registered", "observed_user_id", u.ID, "zone_id", zoneID)

	return Result{
		Status: http.StatusOK,
		Body: Response{
			User: UserDetails{
				ID:                   u.ID,
				UserType:             database.UserTypeObserved,
				HasAccess:            true,
				Similarity:           similarity,
				StatusDetails:        s.statuses.Details(u.StatusID),
				ZonesAccessedDetails: s.zoneCatalog(ctx).details(u.LastAccessedZones),
				ObservedDetails:      observedDetails(u, similarity, 0),
			},
			Type:    TypeNewObserved,
			Message: "New Observed User Registered. Access Granted.",
		},
	}, nil
}

func (s *Service) noMatch(entry *database.ValidationLogEntry) Result {
	entry.Result = false
	entry.Decision = database.DecisionDenied
	entry.Reason = noMatchReason
	entry.MatchStatus = TypeNoMatch
	return noMatchResult()
}

func (s *Service) unhandled(ctx context.Context, entry *database.ValidationLogEntry, err error) Result {
	s.log.Error(ctx, "validation failed", "error", err)
	entry.Result = false
	entry.Decision = database.DecisionError
	entry.Reason = unhandledReasonPrefix + err.Error()
	entry.MatchStatus = MatchStatusUnhandled
	if errors.Is(err, access.ErrMissingStatus) {
		entry.MatchStatus = MatchStatusStatusIDMissing
	}
	return systemErrorResult(err)
}

// writeLog persists the audit entry even when the caller has gone away.
func (s *Service) writeLog(ctx context.Context, entry *database.ValidationLogEntry) {
	if entry.VectorAttempted == nil {
		entry.VectorAttempted = []float64{}
	}
	if err := s.logs.InsertValidationLog(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error(ctx, "failed to write validation log",
			"match_status", entry.MatchStatus, "decision", entry.Decision, "error", err)
	}
}

func (s *Service) decodeImage(ctx context.Context, imageData string) []byte {
	if strings.TrimSpace(imageData) == "" {
		return nil
	}
	data, err := ai.DecodeImageData(imageData)
	if err != nil {
		s.log.Warn(ctx, "ignoring undecodable capture", "error", err)
		return nil
	}
	return data
}

func (s *Service) uploadImage(ctx context.Context, id string, data []byte) Outcome[string] {
	if s.uploader == nil {
		return Warn[string](ErrUploadDisabled)
	}
	url, err := s.uploader.UploadFaceImage(ctx, id, data)
	if err != nil {
		s.log.Warn(ctx, "face image upload failed", "id", id, "error", err)
		return Warn[string](err)
	}
	return Ok(url)
}

func (s *Service) suggest(ctx context.Context, image []byte, sc ai.SuggestionContext) Outcome[string] {
	if s.suggester == nil {
		return Ok("")
	}
	suggestion, err := s.suggester.Suggest(ctx, image, sc)
	if err != nil {
		s.log.Warn(ctx, "suggestion failed", "provider", s.suggester.Name(), "type", sc.Type, "error", err)
		return Warn[string](err)
	}
	return Ok(suggestion)
}

// zoneIndex is the zone catalog keyed by ID, loaded once per request.
type zoneIndex struct {
	byID map[string]database.CatalogItem
}

func (s *Service) zoneCatalog(ctx context.Context) zoneIndex {
	idx := zoneIndex{byID: map[string]database.CatalogItem{}}
	zones, err := s.catalog.ListZones(ctx)
	if err != nil {
		s.log.Warn(ctx, "failed to load zone catalog", "error", err)
		return idx
	}
	for _, z := range zones {
		idx.byID[z.ID] = z
	}
	return idx
}

// details returns the catalog entries of ids, skipping unknown zones.
func (z zoneIndex) details(ids []string) []database.CatalogItem {
	out := []database.CatalogItem{}
	for _, id := range ids {
		if item, ok := z.byID[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

func (z zoneIndex) names(ids []string) []string {
	var out []string
	for _, item := range z.details(ids) {
		out = append(out, item.Name)
	}
	return out
}
