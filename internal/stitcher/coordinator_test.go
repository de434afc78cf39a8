// internal/stitcher/coordinator_test.go
package stitcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/models"
)

func clipResult(index int, payload string) *models.SceneResult {
	return &models.SceneResult{
		Scene:         models.Scene{Index: index},
		VideoArtifact: "data:video/mp4;base64," + base64.StdEncoding.EncodeToString([]byte(payload)),
		Status:        models.SceneStatusSucceeded,
	}
}

func TestStitchUploadsInSceneOrder(t *testing.T) {
	var mu sync.Mutex
	var uploaded []string
	var concatPaths []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/save-video":
			file, _, err := r.FormFile("video")
			require.NoError(t, err)
			data, _ := io.ReadAll(file)
			mu.Lock()
			uploaded = append(uploaded, string(data))
			path := fmt.Sprintf("/srv/uploads/%d.mp4", len(uploaded))
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"filePath": path, "filename": "x.mp4"})

		case "/api/concat-videos":
			var req struct {
				VideoPaths []string `json:"videoPaths"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			concatPaths = req.VideoPaths
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"downloadUrl": "/api/download/final_1.mp4"})

		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	coord := NewCoordinator(server.URL)
	results := []*models.SceneResult{
		clipResult(0, "clip-zero"),
		{Scene: models.Scene{Index: 1}, Status: models.SceneStatusErrored}, // no video, skipped
		clipResult(2, "clip-two"),
		clipResult(3, "clip-three"),
	}

	finalURL, err := coord.Stitch(context.Background(), results, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/api/download/final_1.mp4", finalURL)

	assert.Equal(t, []string{"clip-zero", "clip-two", "clip-three"}, uploaded)
	assert.Equal(t, []string{"/srv/uploads/1.mp4", "/srv/uploads/2.mp4", "/srv/uploads/3.mp4"}, concatPaths)
}

func TestStitchWithoutClipsFails(t *testing.T) {
	coord := NewCoordinator("http://localhost:0")
	_, err := coord.Stitch(context.Background(), []*models.SceneResult{
		{Scene: models.Scene{Index: 0}, Status: models.SceneStatusErrored},
	}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestStitchUploadFailureNamesScene(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))
	defer server.Close()

	coord := NewCoordinator(server.URL)
	_, err := coord.Stitch(context.Background(), []*models.SceneResult{clipResult(4, "clip")}, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeUpload, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "scene 5")
}

func TestStitchConcatFailureIsConcatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/save-video" {
			json.NewEncoder(w).Encode(map[string]string{"filePath": "/srv/a.mp4"})
			return
		}
		http.Error(w, "ffmpeg exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	coord := NewCoordinator(server.URL)
	_, err := coord.Stitch(context.Background(), []*models.SceneResult{
		clipResult(0, "a"), clipResult(1, "b"),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeConcat, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "ffmpeg exploded")
}
