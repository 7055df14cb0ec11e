// Package faces enrolls registered face embeddings and stores uploaded face images.
package faces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-access/internal/ai"
	"github.com/kozaktomas/face-access/internal/constants"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/facematch"
	"github.com/kozaktomas/face-access/internal/logging"
)

var (
	// ErrDuplicateFace means another registered user already has a very similar face.
	ErrDuplicateFace = errors.New("a user with a very similar facial profile already exists")
	// ErrUploadDisabled is returned when no image store is configured.
	ErrUploadDisabled = errors.New("image upload is not configured")
)

// ImageUploader stores a capture under the owner's ID and returns its public URL.
type ImageUploader interface {
	UploadFaceImage(ctx context.Context, id string, data []byte) (string, error)
}

// Service enrolls faces and attaches images to users.
type Service struct {
	faces    database.FaceWriter
	users    database.UserWriter
	observed database.ObservedWriter
	uploader ImageUploader
	log      logging.Logger
}

// NewService builds a Service. The uploader may be nil.
func NewService(faces database.FaceWriter, users database.UserWriter, observed database.ObservedWriter, uploader ImageUploader, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop{}
	}
	return &Service{faces: faces, users: users, observed: observed, uploader: uploader, log: log}
}

// EnrollRequest carries the embedding and an optional profile picture.
type EnrollRequest struct {
	UserID        string    `json:"userId"`
	FaceEmbedding []float64 `json:"faceEmbedding"`
	ImageData     string    `json:"imageData,omitempty"`
}

// EnrollResult describes a stored face.
type EnrollResult struct {
	UserID            string    `json:"userId"`
	Replaced          bool      `json:"replaced"`
	ProfilePictureURL string    `json:"profilePictureUrl,omitempty"`
	EnrolledAt        time.Time `json:"enrolledAt"`
}

// Enroll stores the face of an existing registered user, replacing a previous one.
// It refuses faces within constants.DuplicateFaceThreshold of another user's face.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	embedding, err := facematch.ValidateEmbedding(req.FaceEmbedding)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("enroll face: %w", err)
	}

	closest, found, err := s.faces.FindClosestFaceExcluding(ctx, embedding, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate face: %w", err)
	}
	if found && closest.Distance <= constants.DuplicateFaceThreshold {
		s.log.Warn(ctx, "duplicate face rejected",
			"user_id", req.UserID, "existing_user_id", closest.ID, "distance", closest.Distance)
		return nil, fmt.Errorf("%w (user %s, distance %.3f)", ErrDuplicateFace, closest.ID, closest.Distance)
	}

	_, err = s.faces.GetFace(ctx, req.UserID)
	replaced := err == nil
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("enroll face: %w", err)
	}

	face := database.RegisteredFace{UserID: req.UserID, Embedding: embedding, CreatedAt: time.Now().UTC()}
	if err := s.faces.SaveFace(ctx, face); err != nil {
		return nil, fmt.Errorf("enroll face: %w", err)
	}

	res := &EnrollResult{UserID: req.UserID, Replaced: replaced, EnrolledAt: face.CreatedAt}
	if req.ImageData != "" {
		url, err := s.UploadImage(ctx, req.UserID, req.ImageData, false)
		if err != nil {
			s.log.Warn(ctx, "profile picture upload failed", "user_id", req.UserID, "error", err)
		} else {
			res.ProfilePictureURL = url
		}
	}

	s.log.Info(ctx, "face enrolled", "user_id", req.UserID, "replaced", replaced)
	return res, nil
}

// UploadImage stores a base64 capture and records its URL on the registered user's
// profile picture or on the observed user's face image.
func (s *Service) UploadImage(ctx context.Context, id, imageData string, isObserved bool) (string, error) {
	data, err := ai.DecodeImageData(imageData)
	if err != nil {
		return "", err
	}
	if s.uploader == nil {
		return "", ErrUploadDisabled
	}

	// Nothing is uploaded for an unknown owner.
	if isObserved {
		_, err = s.observed.GetObservedUser(ctx, id)
	} else {
		_, err = s.users.GetUser(ctx, id)
	}
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	url, err := s.uploader.UploadFaceImage(ctx, id, data)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	if isObserved {
		err = s.observed.SetObservedFaceImage(ctx, id, url)
	} else {
		err = s.users.SetProfilePictureURL(ctx, id, url)
	}
	if err != nil {
		return "", fmt.Errorf("store image url: %w", err)
	}
	return url, nil
}
