// internal/videogen/stage.go
package videogen

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/resolver"
)

// Fixed priority-ordered candidate list. Video models are not discovered:
// the long-running API returns a handle, not the result, so a wrong guess
// is expensive and the list stays curated.
var videoCandidates = []string{
	"veo-3.1-generate-preview",
	"veo-3.0-generate-001",
	"veo-3.0-fast-generate-001",
}

const (
	pollInterval = 5 * time.Second
	maxPolls     = 180 // 15-minute ceiling
)

// Request carries one scene's video job.
type Request struct {
	Credential    string
	Prompt        string
	ImageDataURI  string // the scene still driving image-to-video
	DurationSec   int
	VisualDetails string
}

// Result is the finished clip plus the model that produced it.
type Result struct {
	Artifact string
	ModelID  string
}

// Stage drives the long-running video job: submit once per candidate, then
// poll the operation handle to a terminal state. Submission failures move
// straight to the next candidate; retries happen at the polling level where
// they are cheap.
type Stage struct {
	client *gemini.Client

	// injectable for tests
	sleep func(time.Duration)
}

// NewStage creates a video synthesis stage.
func NewStage(client *gemini.Client) *Stage {
	return &Stage{client: client, sleep: time.Sleep}
}

// Generate produces one clip for a scene, trying each candidate model until
// one completes. Permission errors abort immediately; every other terminal
// reason is recorded and the next candidate tried.
func (s *Stage) Generate(ctx context.Context, req Request, onStatus resolver.StatusFunc) (*Result, error) {
	payload, err := s.buildPayload(req)
	if err != nil {
		return nil, err
	}

	var terminal []string
	for _, modelID := range videoCandidates {
		if onStatus != nil {
			onStatus(fmt.Sprintf("requesting %s...", modelID))
		}

		opName, err := s.client.StartVideoJob(ctx, req.Credential, modelID, *payload)
		if err != nil {
			if apperrors.IsPermissionError(err) {
				return nil, err
			}
			terminal = append(terminal, fmt.Sprintf("[%s] %v", modelID, err))
			continue
		}

		artifact, err := s.poll(ctx, req.Credential, modelID, opName, onStatus)
		if err != nil {
			if apperrors.IsPermissionError(err) {
				return nil, err
			}
			terminal = append(terminal, fmt.Sprintf("[%s] %v", modelID, err))
			continue
		}

		return &Result{Artifact: artifact, ModelID: modelID}, nil
	}

	return nil, apperrors.NewExhaustedError(
		"video generation failed, diagnostics:\n"+strings.Join(terminal, "\n"), nil)
}

// poll walks the operation to a terminal state: done+success extracts the
// payload, done+error fails the candidate, and the attempt ceiling converts
// to a timeout.
func (s *Stage) poll(ctx context.Context, apiKey, modelID, opName string, onStatus resolver.StatusFunc) (string, error) {
	for count := 1; count <= maxPolls; count++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if onStatus != nil {
			onStatus(fmt.Sprintf("polling %s (%ds)...", modelID, count*int(pollInterval.Seconds())))
		}

		op, err := s.client.PollOperation(ctx, apiKey, opName)
		if err != nil {
			return "", err
		}

		if !op.Done {
			s.sleep(pollInterval)
			continue
		}

		if op.Error != nil {
			return "", apperrors.NewProcessingError(fmt.Sprintf("operation failed: %s", op.Error.Message), nil)
		}
		return ExtractVideo(op.Response, apiKey)
	}

	return "", apperrors.NewTimeoutError(fmt.Sprintf("polling %s timed out after %d attempts", modelID, maxPolls))
}

// buildPayload converts the scene still into the instances-style request.
// An image mime type rides in the image slot, a video mime type (scene
// extension) in the video slot.
func (s *Stage) buildPayload(req Request) (*gemini.PredictRequest, error) {
	instance := gemini.VideoInstance{Prompt: BuildPrompt(req)}

	if req.ImageDataURI != "" {
		blob, mime, err := decodeDataURI(req.ImageDataURI)
		if err != nil {
			return nil, apperrors.NewValidationError("unusable reference payload for video job", err)
		}
		media := &gemini.MediaBlob{BytesBase64Encoded: blob, MIMEType: mime}
		switch {
		case strings.HasPrefix(mime, "image/"):
			instance.Image = media
		case strings.HasPrefix(mime, "video/"):
			instance.Video = media
		}
	}

	return &gemini.PredictRequest{Instances: []gemini.VideoInstance{instance}}, nil
}

// BuildPrompt augments the scene prompt with the mandatory spoken-language
// and wardrobe continuity instructions.
func BuildPrompt(req Request) string {
	var visualDetailsText string
	if strings.TrimSpace(req.VisualDetails) != "" {
		visualDetailsText = fmt.Sprintf("\n\nVisual consistency requirements: %s", strings.TrimSpace(req.VisualDetails))
	}

	return fmt.Sprintf(`Generate a %d-second cinematic video based on this storyboard: %s.

Key requirements:
1. Audio: all character dialogue and narration must be 100%% in Cantonese.
2. Wardrobe: characters must keep exactly the same clothing, hairstyle and accessories as the reference image.
3. Sound: include natural ambient sound effects and cinematic background music.
4. Motion: keep movement realistic and high fidelity.%s

CRITICAL: All dialogue and narration must be in Cantonese. Character clothing must match the reference image exactly.`,
		req.DurationSec, req.Prompt, visualDetailsText)
}

// decodeDataURI splits a data URI into its base64 payload and mime type.
// Bare base64 input is assumed to be JPEG, matching the upload path.
func decodeDataURI(uri string) (data, mime string, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return uri, "image/jpeg", nil
	}
	head, payload, found := strings.Cut(uri, ",")
	if !found {
		return "", "", fmt.Errorf("malformed data URI")
	}
	mime = strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";base64")
	if mime == "" {
		mime = "image/jpeg"
	}
	return payload, mime, nil
}
