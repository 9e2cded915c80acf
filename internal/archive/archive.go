// Package archive persists finished interview artifacts (candidate
// recordings, rendered answers) to object storage for later review.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Storage persists one artifact under an object key.
type Storage interface {
	Upload(ctx context.Context, objectKey, contentType string, body []byte) error
}

// SupabaseStorage implements Storage using Supabase's Storage API.
type SupabaseStorage struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	Client     *http.Client
	log        *logrus.Entry
}

// NewSupabaseStorage constructs a new Supabase storage client.
func NewSupabaseStorage(baseURL, serviceKey, bucket string) *SupabaseStorage {
	return &SupabaseStorage{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		Bucket:     bucket,
		Client:     &http.Client{Timeout: 30 * time.Second},
		log:        logrus.WithField("component", "archive"),
	}
}

// Configured reports whether the client can reach storage at all. Archiving
// is optional; callers skip it when unconfigured.
func (s *SupabaseStorage) Configured() bool {
	return s.BaseURL != "" && s.ServiceKey != ""
}

func (s *SupabaseStorage) Upload(ctx context.Context, objectKey, contentType string, body []byte) error {
	if !s.Configured() {
		return fmt.Errorf("missing storage configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.BaseURL, s.Bucket, objectKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "true")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	s.log.WithFields(logrus.Fields{"key": objectKey, "bytes": len(body)}).Info("artifact archived")
	return nil
}

// ObjectKey builds a stable key for one recorded answer:
// <session>/q<question>-<random>.<ext>
func ObjectKey(sessionID string, questionNumber int, mimeType string) string {
	ext := "opus"
	if strings.Contains(mimeType, "wav") {
		ext = "wav"
	}
	return fmt.Sprintf("%s/q%02d-%s.%s", sessionID, questionNumber, uuid.NewString()[:8], ext)
}
