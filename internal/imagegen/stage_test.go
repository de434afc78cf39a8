// internal/imagegen/stage_test.go
package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/resolver"
)

func TestBuildPromptWithReferencePutsIdentityFirst(t *testing.T) {
	prompt := BuildPrompt(Request{
		Prompt:    "two people sharing an umbrella",
		Reference: &models.ReferenceImage{Data: []byte{1}, MIMEType: "image/jpeg"},
		Framing:   models.FramingLandscape,
	})

	assert.True(t, strings.HasPrefix(prompt, "CRITICAL PRIORITY - FACIAL IDENTITY LOCK"),
		"identity lock must outrank the scene content")
	assert.Contains(t, prompt, "two people sharing an umbrella")
	assert.Contains(t, prompt, "4:3 ratio")
}

func TestBuildPromptWithoutReferenceOmitsIdentityLock(t *testing.T) {
	prompt := BuildPrompt(Request{
		Prompt:  "empty street at dawn",
		Framing: models.FramingPortrait,
	})

	assert.NotContains(t, prompt, "FACIAL IDENTITY LOCK")
	assert.Contains(t, prompt, "3:4 ratio")
	assert.Contains(t, prompt, "NO anime")
}

func TestBuildPromptCarriesVisualDetails(t *testing.T) {
	prompt := BuildPrompt(Request{
		Prompt:        "cafe table",
		VisualDetails: "white dress, pearl earrings",
	})
	assert.Contains(t, prompt, "white dress, pearl earrings")
}

func TestExtractImage(t *testing.T) {
	t.Run("inline candidate part", func(t *testing.T) {
		uri, ok := ExtractImage(&gemini.GenerateResponse{
			Candidates: []gemini.Candidate{{
				Content: gemini.Content{Parts: []gemini.Part{
					{Text: "some commentary"},
					{InlineData: &gemini.InlineData{MIMEType: "image/png", Data: "QUJD"}},
				}},
			}},
		})
		require.True(t, ok)
		assert.Equal(t, "data:image/png;base64,QUJD", uri)
	})

	t.Run("legacy predictions shape", func(t *testing.T) {
		uri, ok := ExtractImage(&gemini.GenerateResponse{
			Predictions: []gemini.Prediction{{BytesBase64Encoded: "WFla"}},
		})
		require.True(t, ok)
		assert.Equal(t, "data:image/png;base64,WFla", uri)
	})

	t.Run("text-only response has no image", func(t *testing.T) {
		_, ok := ExtractImage(&gemini.GenerateResponse{
			Candidates: []gemini.Candidate{{
				Content: gemini.Content{Parts: []gemini.Part{{Text: "no picture"}}},
			}},
		})
		assert.False(t, ok)
	})
}

func TestGenerateLocksModelAndSkipsDiscovery(t *testing.T) {
	var discoveryCalls, generateCalls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/v1beta/models"):
			atomic.AddInt32(&discoveryCalls, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]interface{}{{
					"name":                       "models/gemini-2.0-flash-exp-image-generation",
					"supportedGenerationMethods": []string{"generateContent"},
				}},
			})
		case strings.Contains(r.URL.Path, ":generateContent"):
			atomic.AddInt32(&generateCalls, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{{
					"content": map[string]interface{}{
						"parts": []map[string]interface{}{{
							"inlineData": map[string]string{"mimeType": "image/png", "data": "QUJD"},
						}},
					},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := gemini.NewClient(server.URL)
	lock := &models.ModelLock{}
	res := resolver.New(client, lock, time.Second)
	res.SetSleeper(func(time.Duration) {})
	stage := NewStage(client, res)

	req := Request{Credential: "AIzaTestKey", Prompt: "first scene"}

	first, err := stage.Generate(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash-exp-image-generation", first.ModelID)
	assert.True(t, strings.HasPrefix(first.DataURI, "data:image/png;base64,"))
	require.NotNil(t, lock.Get())

	// every later scene reuses the locked model without a discovery call
	for i := 0; i < 10; i++ {
		_, err := stage.Generate(context.Background(), req, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&discoveryCalls))
	assert.Equal(t, int32(11), atomic.LoadInt32(&generateCalls))
}

func TestGeneratePropagatesPermissionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/v1beta/models") {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]interface{}{{
					"name":                       "models/imagen-4-fast",
					"supportedGenerationMethods": []string{"generateContent"},
				}},
			})
			return
		}
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 403, "message": "you do not have permission to use this model"},
		})
	}))
	defer server.Close()

	client := gemini.NewClient(server.URL)
	res := resolver.New(client, &models.ModelLock{}, time.Second)
	res.SetSleeper(func(time.Duration) {})
	stage := NewStage(client, res)

	_, err := stage.Generate(context.Background(), Request{Credential: "AIzaTestKey", Prompt: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not have permission")
}
