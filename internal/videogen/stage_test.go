// internal/videogen/stage_test.go
package videogen

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/gemini"
)

// fakeVideoServer scripts the long-running job endpoints per model.
type fakeVideoServer struct {
	mu          sync.Mutex
	submissions map[string]int
	polls       map[string]int

	// pollScript returns the operation body for the n-th poll (1-based)
	pollScript func(model string, n int) (status int, body string)
	submit     func(model string) (status int, body string)
}

func newFakeVideoServer(t *testing.T) (*fakeVideoServer, *gemini.Client) {
	t.Helper()
	f := &fakeVideoServer{
		submissions: make(map[string]int),
		polls:       make(map[string]int),
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, ":predictLongRunning"):
			model := modelFromPath(r.URL.Path, ":predictLongRunning")
			f.mu.Lock()
			f.submissions[model]++
			f.mu.Unlock()
			status, body := f.submit(model)
			w.WriteHeader(status)
			fmt.Fprint(w, body)

		case strings.Contains(r.URL.Path, "/operations/"):
			model := strings.TrimPrefix(r.URL.Path, "/v1beta/operations/")
			f.mu.Lock()
			f.polls[model]++
			n := f.polls[model]
			f.mu.Unlock()
			status, body := f.pollScript(model, n)
			w.WriteHeader(status)
			fmt.Fprint(w, body)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return f, gemini.NewClient(server.URL)
}

func modelFromPath(path, suffix string) string {
	trimmed := strings.TrimSuffix(path, suffix)
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

func operationFor(model string) string {
	return fmt.Sprintf(`{"name": "operations/%s"}`, model)
}

func TestGenerateSucceedsAfterFivePolls(t *testing.T) {
	f, client := newFakeVideoServer(t)
	f.submit = func(model string) (int, string) {
		return http.StatusOK, operationFor(model)
	}
	f.pollScript = func(model string, n int) (int, string) {
		if n < 5 {
			return http.StatusOK, `{"name": "op", "done": false}`
		}
		return http.StatusOK, `{"name": "op", "done": true,
			"response": {"generateVideoResponse": {"video": {"bytesBase64Encoded": "QUJD"}}}}`
	}

	stage := NewStage(client)
	var slept time.Duration
	stage.sleep = func(d time.Duration) { slept += d }

	result, err := stage.Generate(context.Background(), Request{
		Credential:  "AIzaKey",
		Prompt:      "couple walks through rain",
		DurationSec: 8,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "veo-3.1-generate-preview", result.ModelID)
	assert.Equal(t, "data:video/mp4;base64,QUJD", result.Artifact)

	// exactly five polls against the first candidate, four waits in between
	assert.Equal(t, 5, f.polls["veo-3.1-generate-preview"])
	assert.Equal(t, 1, f.submissions["veo-3.1-generate-preview"])
	assert.GreaterOrEqual(t, slept, 20*time.Second)
	assert.Zero(t, f.submissions["veo-3.0-generate-001"])
}

func TestSafetyFilteredCandidateIsNotRetried(t *testing.T) {
	f, client := newFakeVideoServer(t)
	f.submit = func(model string) (int, string) {
		return http.StatusOK, operationFor(model)
	}
	f.pollScript = func(model string, n int) (int, string) {
		return http.StatusOK, `{"name": "op", "done": true,
			"response": {"raiMediaFilteredCount": 1, "raiMediaFilteredReasons": ["unsafe content"]}}`
	}

	stage := NewStage(client)
	stage.sleep = func(time.Duration) {}

	_, err := stage.Generate(context.Background(), Request{
		Credential: "AIzaKey",
		Prompt:     "scene",
	}, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeExhausted, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "unsafe content")

	// each candidate is submitted and polled once, never retried
	for _, model := range videoCandidates {
		assert.Equal(t, 1, f.submissions[model], model)
		assert.Equal(t, 1, f.polls[model], model)
	}
}

func TestPermissionErrorAbortsAllCandidates(t *testing.T) {
	f, client := newFakeVideoServer(t)
	f.submit = func(model string) (int, string) {
		return http.StatusForbidden,
			`{"error": {"code": 403, "message": "you do not have permission to run video jobs"}}`
	}
	f.pollScript = func(model string, n int) (int, string) {
		return http.StatusOK, "{}"
	}

	stage := NewStage(client)
	stage.sleep = func(time.Duration) {}

	_, err := stage.Generate(context.Background(), Request{Credential: "AIzaKey", Prompt: "x"}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsPermissionError(err))
	assert.Equal(t, 1, f.submissions["veo-3.1-generate-preview"])
	assert.Zero(t, f.submissions["veo-3.0-generate-001"])
}

func TestFailedOperationAdvancesToNextCandidate(t *testing.T) {
	f, client := newFakeVideoServer(t)
	f.submit = func(model string) (int, string) {
		return http.StatusOK, operationFor(model)
	}
	f.pollScript = func(model string, n int) (int, string) {
		if model == "veo-3.1-generate-preview" {
			return http.StatusOK, `{"name": "op", "done": true, "error": {"code": 13, "message": "internal rendering fault"}}`
		}
		return http.StatusOK, `{"name": "op", "done": true,
			"response": {"video": {"bytesBase64Encoded": "REVG"}}}`
	}

	stage := NewStage(client)
	stage.sleep = func(time.Duration) {}

	result, err := stage.Generate(context.Background(), Request{Credential: "AIzaKey", Prompt: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "veo-3.0-generate-001", result.ModelID)
}

func TestBuildPromptRequirements(t *testing.T) {
	prompt := BuildPrompt(Request{
		Prompt:        "she opens the letter",
		DurationSec:   8,
		VisualDetails: "same white dress throughout",
	})
	assert.Contains(t, prompt, "8-second")
	assert.Contains(t, prompt, "she opens the letter")
	assert.Contains(t, prompt, "Cantonese")
	assert.Contains(t, prompt, "same white dress throughout")
}

func TestBuildPayloadMediaSlots(t *testing.T) {
	stage := NewStage(nil)

	t.Run("image data uri rides the image slot", func(t *testing.T) {
		payload, err := stage.buildPayload(Request{Prompt: "p", ImageDataURI: "data:image/png;base64,QUJD"})
		require.NoError(t, err)
		require.Len(t, payload.Instances, 1)
		require.NotNil(t, payload.Instances[0].Image)
		assert.Equal(t, "QUJD", payload.Instances[0].Image.BytesBase64Encoded)
		assert.Nil(t, payload.Instances[0].Video)
	})

	t.Run("video data uri rides the video slot", func(t *testing.T) {
		payload, err := stage.buildPayload(Request{Prompt: "p", ImageDataURI: "data:video/mp4;base64,REVG"})
		require.NoError(t, err)
		require.NotNil(t, payload.Instances[0].Video)
		assert.Nil(t, payload.Instances[0].Image)
	})

	t.Run("bare base64 assumed jpeg", func(t *testing.T) {
		payload, err := stage.buildPayload(Request{Prompt: "p", ImageDataURI: "QUJD"})
		require.NoError(t, err)
		require.NotNil(t, payload.Instances[0].Image)
		assert.Equal(t, "image/jpeg", payload.Instances[0].Image.MIMEType)
	})
}

func TestDecodeDataURI(t *testing.T) {
	data, mime, err := decodeDataURI("data:image/png;base64,QUJD")
	require.NoError(t, err)
	assert.Equal(t, "QUJD", data)
	assert.Equal(t, "image/png", mime)

	_, _, err = decodeDataURI("data:missing-comma")
	require.Error(t, err)
}
