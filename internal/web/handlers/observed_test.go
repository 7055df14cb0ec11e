package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-access/internal/access"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/database/mock"
	"github.com/kozaktomas/face-access/internal/observed"
)

func newObservedFixture(t *testing.T) (*ObservedHandler, *mock.MockObservedStore) {
	t.Helper()
	store := mock.NewMockObservedStore()
	catalog := mock.NewMockCatalog()
	catalog.Zones = []database.CatalogItem{{ID: "zoneA", Name: "Lobby"}}
	statuses, err := access.NewStatusCatalog(catalog.Statuses)
	if err != nil {
		t.Fatalf("status catalog: %v", err)
	}
	now := time.Now().UTC()
	store.AddObservedUser(database.ObservedUser{
		ID:                "o1",
		FirstSeenAt:       now.Add(-time.Hour),
		LastSeenAt:        now,
		AccessCount:       6,
		LastAccessedZones: []string{"zoneA"},
		StatusID:          access.StatusActiveTemporal,
		ExpiresAt:         now.Add(time.Hour),
	})
	return NewObservedHandler(observed.NewManager(store, catalog, statuses, nil), nil), store
}

func TestObservedHandler_Action(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
		error   string
	}{
		{
			name:    "block",
			body:    `{"observedUserId":"o1","actionType":"block"}`,
			status:  http.StatusOK,
			message: "Observed user o1 blocked successfully.",
		},
		{
			name:   "register",
			body:   `{"observedUserId":"o1","actionType":"register"}`,
			status: http.StatusNotImplemented,
			error:  "Action 'register' for user o1 is not yet implemented.",
		},
		{
			name:   "unknown action",
			body:   `{"observedUserId":"o1","actionType":"promote"}`,
			status: http.StatusBadRequest,
			error:  "Invalid action type: promote",
		},
		{
			name:   "missing fields",
			body:   `{"observedUserId":"o1"}`,
			status: http.StatusBadRequest,
			error:  "Missing observedUserId or actionType.",
		},
		{
			name:   "unknown user",
			body:   `{"observedUserId":"nobody","actionType":"extend"}`,
			status: http.StatusNotFound,
			error:  "Observed user not found.",
		},
		{
			name:   "invalid json",
			body:   `not json`,
			status: http.StatusBadRequest,
			error:  errInvalidRequestBody,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, _ := newObservedFixture(t)
			recorder := httptest.NewRecorder()

			handler.Action(recorder, jsonRequest(t, "POST", "/api/v1/observed-users/actions", tc.body))

			assertStatusCode(t, recorder, tc.status)
			if tc.error != "" {
				assertJSONError(t, recorder, tc.error)
				return
			}
			var body map[string]string
			parseJSONResponse(t, recorder, &body)
			if body["message"] != tc.message {
				t.Errorf("expected message %q, got %q", tc.message, body["message"])
			}
		})
	}
}

func TestObservedHandler_ActionStoreFailure(t *testing.T) {
	handler, store := newObservedFixture(t)
	store.UpdateError = errors.New("deadlock")

	recorder := httptest.NewRecorder()
	handler.Action(recorder, jsonRequest(t, "POST", "/api/v1/observed-users/actions",
		`{"observedUserId":"o1","actionType":"extend"}`))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestObservedHandler_List(t *testing.T) {
	handler, _ := newObservedFixture(t)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/observed-users?page=1&pageSize=5&filterType=pendingReview", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var res observed.ListResult
	parseJSONResponse(t, recorder, &res)
	if len(res.Users) != 1 || res.Users[0].ID != "o1" {
		t.Fatalf("unexpected users %+v", res.Users)
	}
	if res.PendingReviewCount != 1 || res.AbsoluteTotalCount != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.Users[0].AccessedZones[0].Name != "Lobby" {
		t.Errorf("expected zone name Lobby, got %s", res.Users[0].AccessedZones[0].Name)
	}
}

func TestObservedHandler_ListInvalidFilter(t *testing.T) {
	handler, _ := newObservedFixture(t)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/observed-users?filterType=vip", nil))

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestObservedHandler_Delete(t *testing.T) {
	handler, store := newObservedFixture(t)

	req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/observed-users/o1", nil), map[string]string{"id": "o1"})
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if _, err := store.GetObservedUser(context.Background(), "o1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected observed user to be deleted, got %v", err)
	}

	recorder = httptest.NewRecorder()
	handler.Delete(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}
