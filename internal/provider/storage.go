package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmonster/booster-apply/internal/domain"
)

const (
	// EvidenceBucket is the Supabase Storage bucket holding proof-of-work
	// screenshots, one folder per Discord ID.
	EvidenceBucket = "boosting-experience-screenshots"

	// MaxEvidenceBytes caps a single screenshot at 3 MiB.
	MaxEvidenceBytes = 3 * 1024 * 1024
)

var allowedEvidenceTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// StorageConfig configures the Supabase Storage client.
type StorageConfig struct {
	ProjectURL string
	APIKey     string
}

// EvidenceStore uploads, lists, and removes evidence screenshots in Supabase
// Storage. Count, size, and type constraints are enforced here, before any
// byte leaves the process.
type EvidenceStore struct {
	prefix     string
	apiKey     string
	httpClient *http.Client
}

// NewEvidenceStore creates an EvidenceStore.
func NewEvidenceStore(cfg StorageConfig) (*EvidenceStore, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("storage project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("storage api key is required")
	}
	return &EvidenceStore{
		prefix:     strings.TrimRight(cfg.ProjectURL, "/") + "/storage/v1",
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Upload validates and stores one screenshot, returning the recorded entry.
// existingCount is the number of files already on the application; the
// overall cap is rejected here rather than at submit time.
func (s *EvidenceStore) Upload(ctx context.Context, discordID, filename, contentType string, existingCount int, body io.Reader) (domain.EvidenceFile, error) {
	var zero domain.EvidenceFile
	if discordID == "" {
		return zero, domain.ErrUnauthorized("authentication required")
	}
	if existingCount >= domain.MaxEvidenceFiles {
		return zero, domain.ErrEvidenceRejected(
			fmt.Sprintf("at most %d screenshots are allowed", domain.MaxEvidenceFiles))
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if _, ok := allowedEvidenceTypes[mediaType]; !ok {
		return zero, domain.ErrEvidenceRejected("only JPEG, PNG, and WebP screenshots are accepted")
	}

	// Read one byte past the cap so an oversized stream is caught without
	// buffering the whole thing.
	data, err := io.ReadAll(io.LimitReader(body, MaxEvidenceBytes+1))
	if err != nil {
		return zero, domain.ErrInternal("read upload body", err)
	}
	if len(data) > MaxEvidenceBytes {
		return zero, domain.ErrEvidenceRejected("screenshots must be 3MB or smaller")
	}
	if len(data) == 0 {
		return zero, domain.ErrEvidenceRejected("uploaded file is empty")
	}

	objectPath := fmt.Sprintf("%s/%d-%s", discordID, time.Now().UnixMilli(), sanitizeFilename(filename, mediaType))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.objectURL(objectPath), bytes.NewReader(data))
	if err != nil {
		return zero, domain.ErrInternal("build upload request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", mediaType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return zero, domain.ErrInternal("upload screenshot", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return zero, domain.ErrInternal(
			fmt.Sprintf("storage returned %d: %s", resp.StatusCode, msg), nil)
	}

	return domain.EvidenceFile{
		StorageRef:  objectPath,
		DisplayName: filename,
		ByteSize:    int64(len(data)),
	}, nil
}

// Delete removes a stored screenshot. The ref must belong to the identity's
// folder; crossing into another applicant's folder is forbidden.
func (s *EvidenceStore) Delete(ctx context.Context, discordID, storageRef string) error {
	if !strings.HasPrefix(storageRef, discordID+"/") {
		return domain.ErrForbidden("evidence file belongs to another applicant")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(storageRef), nil)
	if err != nil {
		return domain.ErrInternal("build delete request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.ErrInternal("delete screenshot", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound("evidence file", storageRef)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.ErrInternal(
			fmt.Sprintf("storage returned %d: %s", resp.StatusCode, msg), nil)
	}
	return nil
}

// List returns the refs currently stored under the identity's folder.
func (s *EvidenceStore) List(ctx context.Context, discordID string) ([]domain.EvidenceFile, error) {
	listReq, err := json.Marshal(map[string]any{"prefix": discordID, "limit": 100})
	if err != nil {
		return nil, domain.ErrInternal("marshal list request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.prefix+"/object/list/"+EvidenceBucket, bytes.NewReader(listReq))
	if err != nil {
		return nil, domain.ErrInternal("build list request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrInternal("list screenshots", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.ErrInternal(
			fmt.Sprintf("storage returned %d: %s", resp.StatusCode, msg), nil)
	}

	var objects []struct {
		Name     string `json:"name"`
		Metadata struct {
			Size int64 `json:"size"`
		} `json:"metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, domain.ErrInternal("decode list response", err)
	}

	files := make([]domain.EvidenceFile, 0, len(objects))
	for _, obj := range objects {
		files = append(files, domain.EvidenceFile{
			StorageRef:  discordID + "/" + obj.Name,
			DisplayName: obj.Name,
			ByteSize:    obj.Metadata.Size,
		})
	}
	return files, nil
}

func (s *EvidenceStore) objectURL(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.prefix + "/object/" + EvidenceBucket + "/" + strings.Join(segments, "/")
}

// sanitizeFilename strips unsafe characters and guarantees an extension
// matching the media type.
func sanitizeFilename(name, mediaType string) string {
	name = unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "screenshot"
	}
	ext := allowedEvidenceTypes[mediaType]
	if !strings.HasSuffix(strings.ToLower(name), ext) &&
		!(ext == ".jpg" && strings.HasSuffix(strings.ToLower(name), ".jpeg")) {
		name += ext
	}
	return name
}
