// internal/stitcher/coordinator.go
package stitcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/utils"
)

// Coordinator drives the final assembly against a stitch server: upload
// every successful clip in scene order, then request one concatenation.
// Any upload failure aborts the whole assembly so a partial film is never
// published.
type Coordinator struct {
	baseURL string
	client  *http.Client
	logger  *utils.Logger
}

// NewCoordinator creates a coordinator talking to the given stitch server.
func NewCoordinator(baseURL string) *Coordinator {
	return &Coordinator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  utils.GetLogger(),
	}
}

// Stitch uploads the clips of every scene that produced video and returns
// the download URL of the assembled film. Scenes without video are skipped;
// zero clips is an error.
func (c *Coordinator) Stitch(ctx context.Context, results []*models.SceneResult, onStatus func(string)) (string, error) {
	var clips []*models.SceneResult
	for _, r := range results {
		if r.HasVideo() {
			clips = append(clips, r)
		}
	}
	if len(clips) == 0 {
		return "", apperrors.NewValidationError("no video clips available to stitch", nil)
	}

	paths := make([]string, 0, len(clips))
	for i, clip := range clips {
		if onStatus != nil {
			onStatus(fmt.Sprintf("uploading clip %d/%d...", i+1, len(clips)))
		}
		path, err := c.uploadClip(ctx, clip)
		if err != nil {
			return "", apperrors.NewUploadError(
				fmt.Sprintf("uploading clip for scene %d failed", clip.Index+1), err)
		}
		paths = append(paths, path)
	}

	if onStatus != nil {
		onStatus(fmt.Sprintf("stitching %d clips...", len(paths)))
	}
	return c.requestConcat(ctx, paths)
}

// uploadClip materializes one clip artifact and posts it to save-video.
func (c *Coordinator) uploadClip(ctx context.Context, clip *models.SceneResult) (string, error) {
	data, err := c.fetchArtifact(ctx, clip.VideoArtifact)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", fmt.Sprintf("scene_%d.mp4", clip.Index+1))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/save-video", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("save-video returned status %d", resp.StatusCode)
	}

	var saved struct {
		FilePath string `json:"filePath"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return "", fmt.Errorf("unreadable save-video response: %w", err)
	}
	if saved.FilePath == "" {
		return "", fmt.Errorf("save-video response missing filePath")
	}
	return saved.FilePath, nil
}

// requestConcat asks the stitch server to join the uploaded clips.
func (c *Coordinator) requestConcat(ctx context.Context, paths []string) (string, error) {
	payload, err := json.Marshal(concatRequest{VideoPaths: paths})
	if err != nil {
		return "", apperrors.NewConcatError("failed to encode concat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/concat-videos", bytes.NewReader(payload))
	if err != nil {
		return "", apperrors.NewConcatError("failed to build concat request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.NewConcatError("concat request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewConcatError(
			fmt.Sprintf("concat returned status %d: %s", resp.StatusCode, tail(string(raw), 200)), nil)
	}

	var result struct {
		DownloadURL string `json:"downloadUrl"`
	}
	if err := json.Unmarshal(raw, &result); err != nil || result.DownloadURL == "" {
		return "", apperrors.NewConcatError("concat response missing downloadUrl", err)
	}

	c.logger.Infof("assembled film available at %s", result.DownloadURL)
	return c.baseURL + result.DownloadURL, nil
}

// fetchArtifact turns a clip artifact into raw bytes. Data URIs decode
// locally; anything else is fetched over HTTP.
func (c *Coordinator) fetchArtifact(ctx context.Context, artifact string) ([]byte, error) {
	if strings.HasPrefix(artifact, "data:") {
		_, payload, found := strings.Cut(artifact, ",")
		if !found {
			return nil, fmt.Errorf("malformed clip data URI")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("undecodable clip payload: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("fetching clip failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clip fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
