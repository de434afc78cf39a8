// internal/imagegen/stage.go
package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/resolver"
)

// Request carries everything needed to render one scene still.
type Request struct {
	Credential    string
	Prompt        string
	Reference     *models.ReferenceImage
	Framing       models.FramingMode
	VisualDetails string
}

// Result is the produced artifact plus the model that made it.
type Result struct {
	DataURI string
	ModelID string
}

// Stage produces one reference-consistent still per scene. The first model
// that succeeds is locked (through the resolver) for every later scene in
// the run.
type Stage struct {
	client   *gemini.Client
	resolver *resolver.Resolver
}

// NewStage creates an image synthesis stage.
func NewStage(client *gemini.Client, res *resolver.Resolver) *Stage {
	return &Stage{client: client, resolver: res}
}

// Generate renders the scene still, trying discovered candidates in order
// under the resolver's retry policy.
func (s *Stage) Generate(ctx context.Context, req Request, onStatus resolver.StatusFunc) (*Result, error) {
	body := gemini.GenerateRequest{
		Contents: []gemini.Content{{Parts: s.buildParts(req)}},
	}

	var result Result
	attempt := func(ctx context.Context, candidate models.ResolvedModel) error {
		resp, err := s.client.GenerateContent(ctx, req.Credential, candidate.APIVersion, candidate.ID, body)
		if err != nil {
			return err
		}

		uri, ok := ExtractImage(resp)
		if !ok {
			return apperrors.NewNoContentError(fmt.Sprintf("[%s] succeeded but no image data in response", candidate.ID))
		}
		result = Result{DataURI: uri, ModelID: candidate.ID}
		return nil
	}

	// discovery runs once per run: a locked model short-circuits it
	var candidates []models.ResolvedModel
	if !s.resolver.HasLockedImage() {
		candidates = s.resolver.DiscoverImageCandidates(ctx, req.Credential, onStatus)
	}
	if _, err := s.resolver.Try(ctx, models.CapabilityImage, candidates, attempt, onStatus); err != nil {
		return nil, err
	}
	return &result, nil
}

// buildParts assembles the text prompt plus the optional inline reference
// image as a secondary part.
func (s *Stage) buildParts(req Request) []gemini.Part {
	parts := []gemini.Part{{Text: BuildPrompt(req)}}
	if req.Reference != nil {
		parts = append(parts, gemini.Part{InlineData: &gemini.InlineData{
			MIMEType: req.Reference.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Reference.Data),
		}})
	}
	return parts
}

// BuildPrompt writes the generation prompt. When a reference image is
// attached the identity-preservation block comes first so it outranks the
// scene content; without a reference the identity block is omitted.
func BuildPrompt(req Request) string {
	var aspectInstruction string
	if req.Framing == models.FramingPortrait {
		aspectInstruction = "vertical portrait format (taller than wide, 3:4 ratio)"
	} else {
		aspectInstruction = "horizontal landscape format (wider than tall, 4:3 ratio)"
	}

	var visualContext string
	if strings.TrimSpace(req.VisualDetails) != "" {
		visualContext = fmt.Sprintf(`

VISUAL & LOCATION CONSISTENCY LOCK (MANDATORY):
%s
Ensure these visual details (appearance, environment, lighting) are strictly followed unless the scene description explicitly overrides them.`, req.VisualDetails)
	}

	if req.Reference == nil {
		return fmt.Sprintf(`Generate a photorealistic 8k image in %s showing: %s.%s

STYLE REQUIREMENTS:
- Photorealistic photography style
- Real human faces with skin texture
- Absolutely NO anime, illustration, cartoon, or painting styles
- Natural lighting and depth of field effects`, aspectInstruction, req.Prompt, visualContext)
	}

	return fmt.Sprintf(`CRITICAL PRIORITY - FACIAL IDENTITY LOCK

MANDATORY REQUIREMENTS (HIGHEST PRIORITY):
1. The person in the generated image MUST have the EXACT SAME FACE as the attached reference image
2. PRESERVE 100%% FACIAL IDENTITY - same ethnicity, race, skin tone, facial structure, eye shape, nose, mouth
3. DO NOT change the person's race or ethnicity under ANY circumstances
4. This is the SAME PERSON performing in a movie scene - maintain complete facial consistency
5. Match the reference photo's hairstyle, hair color, and facial features precisely
%s

SCENE DESCRIPTION (Secondary Priority):
Generate a photorealistic 8k image in %s showing: %s

STYLE REQUIREMENTS:
- Photorealistic photography style
- Real human faces with skin texture
- Absolutely NO anime, illustration, cartoon, or painting styles
- Natural lighting and depth of field effects

REMINDER: the character's face, ethnicity, and race MUST match the reference image EXACTLY. This is non-negotiable.`,
		visualContext, aspectInstruction, req.Prompt)
}

// ExtractImage probes the response shapes in order: inline image parts in
// the candidate envelope first, then the legacy predictions shape.
func ExtractImage(resp *gemini.GenerateResponse) (string, bool) {
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image") {
				return fmt.Sprintf("data:%s;base64,%s", part.InlineData.MIMEType, part.InlineData.Data), true
			}
		}
	}

	if len(resp.Predictions) > 0 && resp.Predictions[0].BytesBase64Encoded != "" {
		return "data:image/png;base64," + resp.Predictions[0].BytesBase64Encoded, true
	}

	return "", false
}
