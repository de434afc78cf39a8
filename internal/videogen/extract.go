// internal/videogen/extract.go
package videogen

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/gemini"
)

// mediaRef is a located video payload: inline bytes or a retrievable URI.
type mediaRef struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	URI                string `json:"uri"`
	MIMEType           string `json:"mimeType"`
}

// videoWrapper may nest the payload under "video" or be the payload itself.
type videoWrapper struct {
	Video *mediaRef `json:"video"`
	mediaRef
}

func (w *videoWrapper) ref() *mediaRef {
	if w.Video != nil {
		return w.Video
	}
	return &w.mediaRef
}

// videoResult covers every known layout of a finished video operation.
// Upstream response shapes drift between model generations; the extractors
// below absorb that drift so the polling state machine stays shape-free.
type videoResult struct {
	Video            *mediaRef          `json:"video"`
	Videos           []videoWrapper     `json:"videos"`
	GeneratedVideos  []videoWrapper     `json:"generatedVideos"`
	GeneratedSamples []videoWrapper     `json:"generatedSamples"`
	Candidates       []gemini.Candidate `json:"candidates"`

	RaiMediaFilteredCount   int      `json:"raiMediaFilteredCount"`
	RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
}

// extractor locates a video payload in one known response layout.
type extractor func(*videoResult) *mediaRef

func extractDirect(r *videoResult) *mediaRef {
	return r.Video
}

func extractWrapped(r *videoResult) *mediaRef {
	for i := range r.Videos {
		if m := r.Videos[i].ref(); usable(m) {
			return m
		}
	}
	return nil
}

func extractGenerated(r *videoResult) *mediaRef {
	for i := range r.GeneratedVideos {
		if m := r.GeneratedVideos[i].ref(); usable(m) {
			return m
		}
	}
	return nil
}

func extractSamples(r *videoResult) *mediaRef {
	for i := range r.GeneratedSamples {
		if r.GeneratedSamples[i].Video != nil {
			return r.GeneratedSamples[i].Video
		}
	}
	return nil
}

// extractors in fixed priority order; the first hit wins.
var extractors = []extractor{
	extractDirect,
	extractWrapped,
	extractGenerated,
	extractSamples,
}

func usable(m *mediaRef) bool {
	return m != nil && (m.BytesBase64Encoded != "" || m.URI != "")
}

// ExtractVideo probes a completed operation response for a video payload.
// The credential is appended to retrievable URIs. A nonzero filtered count
// is a distinct terminal outcome: the content was blocked, not lost.
func ExtractVideo(response json.RawMessage, apiKey string) (string, error) {
	// some models wrap the result, some return it at the top level
	var envelope struct {
		GenerateVideoResponse json.RawMessage `json:"generateVideoResponse"`
	}
	main := response
	if err := json.Unmarshal(response, &envelope); err == nil && len(envelope.GenerateVideoResponse) > 0 {
		main = envelope.GenerateVideoResponse
	}

	var result videoResult
	if err := json.Unmarshal(main, &result); err != nil {
		return "", apperrors.NewNoContentError(fmt.Sprintf("unreadable operation response: %v", err))
	}

	for _, extract := range extractors {
		m := extract(&result)
		if !usable(m) {
			continue
		}
		if m.BytesBase64Encoded != "" {
			return "data:video/mp4;base64," + m.BytesBase64Encoded, nil
		}
		return gemini.WithKey(m.URI, apiKey), nil
	}

	// last resort: candidate envelope with an inline video part
	for _, candidate := range result.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "video") {
				return fmt.Sprintf("data:%s;base64,%s", part.InlineData.MIMEType, part.InlineData.Data), nil
			}
		}
	}

	if result.RaiMediaFilteredCount > 0 {
		return "", apperrors.NewSafetyFilteredError(fmt.Sprintf(
			"content safety filter triggered: %s", strings.Join(result.RaiMediaFilteredReasons, " ")))
	}

	return "", apperrors.NewNoContentError(
		"done status but no video data found; checked: video, videos, generatedVideos, generatedSamples, candidates")
}
