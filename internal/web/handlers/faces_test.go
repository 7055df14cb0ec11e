package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/database/mock"
	"github.com/kozaktomas/face-access/internal/faces"
)

type stubUploader struct{ err error }

func (s stubUploader) UploadFaceImage(ctx context.Context, id string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.test/face-images/" + id + ".jpeg", nil
}

type stubIndex struct {
	rebuildErr error
	saveErr    error
	count      int
	rebuilt    bool
}

func (s *stubIndex) RebuildHNSW(context.Context) error {
	s.rebuilt = true
	return s.rebuildErr
}
func (s *stubIndex) HNSWCount() int       { return s.count }
func (s *stubIndex) IsHNSWEnabled() bool  { return true }
func (s *stubIndex) SaveHNSWIndex() error { return s.saveErr }

func newFacesFixture(uploader faces.ImageUploader) (*FacesHandler, *mock.MockFaceStore, *mock.MockUserStore) {
	faceStore := mock.NewMockFaceStore()
	users := mock.NewMockUserStore()
	users.AddUser(database.RegisteredUser{ID: "u1", FullName: "Ana"})
	users.AddUser(database.RegisteredUser{ID: "u2", FullName: "Bo"})
	svc := faces.NewService(faceStore, users, mock.NewMockObservedStore(), uploader, nil)
	return NewFacesHandler(svc, nil, nil), faceStore, users
}

func TestFacesHandler_Enroll(t *testing.T) {
	handler, faceStore, _ := newFacesFixture(stubUploader{})

	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, jsonRequest(t, "POST", "/api/v1/faces",
		`{"userId":"u1","faceEmbedding":`+embeddingJSON(0)+`}`))

	assertStatusCode(t, recorder, http.StatusCreated)
	var res faces.EnrollResult
	parseJSONResponse(t, recorder, &res)
	if res.UserID != "u1" || res.Replaced {
		t.Errorf("unexpected result %+v", res)
	}
	if n, _ := faceStore.CountFaces(context.Background()); n != 1 {
		t.Errorf("expected 1 face, got %d", n)
	}
}

func TestFacesHandler_EnrollErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing user", `{"faceEmbedding":` + embeddingJSON(0) + `}`, http.StatusBadRequest},
		{"short embedding", `{"userId":"u1","faceEmbedding":[1,2]}`, http.StatusBadRequest},
		{"unknown user", `{"userId":"ghost","faceEmbedding":` + embeddingJSON(0) + `}`, http.StatusNotFound},
		{"duplicate face", `{"userId":"u2","faceEmbedding":` + embeddingJSON(0) + `}`, http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, faceStore, _ := newFacesFixture(stubUploader{})
			emb := make([]float32, 128)
			emb[0] = 1
			faceStore.AddFace("u1", emb)

			recorder := httptest.NewRecorder()
			handler.Enroll(recorder, jsonRequest(t, "POST", "/api/v1/faces", tc.body))

			assertStatusCode(t, recorder, tc.status)
		})
	}
}

func TestFacesHandler_UploadImage(t *testing.T) {
	image := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	t.Run("registered user", func(t *testing.T) {
		handler, _, users := newFacesFixture(stubUploader{})
		recorder := httptest.NewRecorder()

		handler.UploadImage(recorder, jsonRequest(t, "POST", "/api/v1/face-images",
			map[string]any{"userId": "u1", "imageData": image}))

		assertStatusCode(t, recorder, http.StatusOK)
		var body map[string]string
		parseJSONResponse(t, recorder, &body)
		if body["imageUrl"] != "https://cdn.test/face-images/u1.jpeg" {
			t.Errorf("unexpected imageUrl %q", body["imageUrl"])
		}
		u, _ := users.GetUser(context.Background(), "u1")
		if u.ProfilePictureURL != body["imageUrl"] {
			t.Errorf("profile picture not stored, got %q", u.ProfilePictureURL)
		}
	})

	tests := []struct {
		name     string
		uploader faces.ImageUploader
		body     map[string]any
		status   int
	}{
		{"missing image", stubUploader{}, map[string]any{"userId": "u1"}, http.StatusBadRequest},
		{"bad base64", stubUploader{}, map[string]any{"userId": "u1", "imageData": "%%%"}, http.StatusBadRequest},
		{"unknown observed user", stubUploader{}, map[string]any{"userId": "o9", "imageData": image, "isObservedUser": true}, http.StatusNotFound},
		{"storage disabled", nil, map[string]any{"userId": "u1", "imageData": image}, http.StatusServiceUnavailable},
		{"storage failure", stubUploader{err: errors.New("bucket gone")}, map[string]any{"userId": "u1", "imageData": image}, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, _, _ := newFacesFixture(tc.uploader)
			recorder := httptest.NewRecorder()

			handler.UploadImage(recorder, jsonRequest(t, "POST", "/api/v1/face-images", tc.body))

			assertStatusCode(t, recorder, tc.status)
		})
	}
}

func TestFacesHandler_RebuildIndex(t *testing.T) {
	t.Run("no index", func(t *testing.T) {
		handler := NewFacesHandler(nil, nil, nil)
		recorder := httptest.NewRecorder()
		handler.RebuildIndex(recorder, httptest.NewRequest("POST", "/api/v1/faces/rebuild-index", nil))
		assertStatusCode(t, recorder, http.StatusConflict)
	})

	t.Run("rebuild", func(t *testing.T) {
		index := &stubIndex{count: 42, saveErr: errors.New("read-only fs")}
		handler := NewFacesHandler(nil, index, nil)
		recorder := httptest.NewRecorder()
		handler.RebuildIndex(recorder, httptest.NewRequest("POST", "/api/v1/faces/rebuild-index", nil))

		assertStatusCode(t, recorder, http.StatusOK)
		var res RebuildIndexResponse
		parseJSONResponse(t, recorder, &res)
		if !index.rebuilt || !res.Success || res.FaceCount != 42 {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("rebuild failure", func(t *testing.T) {
		handler := NewFacesHandler(nil, &stubIndex{rebuildErr: errors.New("db down")}, nil)
		recorder := httptest.NewRecorder()
		handler.RebuildIndex(recorder, httptest.NewRequest("POST", "/api/v1/faces/rebuild-index", nil))
		assertStatusCode(t, recorder, http.StatusInternalServerError)
	})
}
