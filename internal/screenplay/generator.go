// internal/screenplay/generator.go
package screenplay

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/resolver"
)

// SourceRemote and SourceLocal label where a screenplay came from, for the
// editor badge and the logs.
const (
	SourceRemote = "Gemini AI"
	SourceLocal  = "Local Heuristic (no credential)"
)

// scriptCandidates is the fixed, priority-ordered model list for the script
// capability.
var scriptCandidates = []models.ResolvedModel{
	{ID: "gemini-3-pro-preview", APIVersion: "v1beta"},
	{ID: "gemini-2.5-pro", APIVersion: "v1beta"},
	{ID: "nano-banana-pro-preview", APIVersion: "v1beta"},
	{ID: "gemini-2.5-flash", APIVersion: "v1beta"},
	{ID: "gemini-2.0-flash-exp", APIVersion: "v1beta"},
}

// Generator turns a free-text scenario into an ordered scene list, either
// through a remote text model or a deterministic local fallback.
type Generator struct {
	client   *gemini.Client
	resolver *resolver.Resolver
}

// NewGenerator creates a screenplay generator.
func NewGenerator(client *gemini.Client, res *resolver.Resolver) *Generator {
	return &Generator{client: client, resolver: res}
}

// Generate produces exactly count scenes. With a credential the remote
// director model runs; without one the local heuristic takes over.
func (g *Generator) Generate(ctx context.Context, req models.RunRequest, onStatus resolver.StatusFunc) (*models.Screenplay, error) {
	if req.Credential == "" {
		return &models.Screenplay{
			Source: SourceLocal,
			Scenes: LocalScreenplay(req.Scenario, req.SceneCount),
		}, nil
	}

	if !models.ValidCredential(req.Credential) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("invalid API key format: key should start with %q (current length: %d)",
				models.CredentialPrefix, len(req.Credential)), nil)
	}

	scenes, err := g.remoteScreenplay(ctx, req, onStatus)
	if err != nil {
		return nil, err
	}
	return &models.Screenplay{Source: SourceRemote, Scenes: scenes}, nil
}

// remoteScreenplay drives the director prompt through the resolver and
// parses the strict JSON array reply.
func (g *Generator) remoteScreenplay(ctx context.Context, req models.RunRequest, onStatus resolver.StatusFunc) ([]models.Scene, error) {
	prompt := buildDirectorPrompt(req)
	body := gemini.GenerateRequest{
		Contents: []gemini.Content{{Parts: []gemini.Part{{Text: prompt}}}},
	}

	var raw []rawScene
	attempt := func(ctx context.Context, candidate models.ResolvedModel) error {
		resp, err := g.client.GenerateContent(ctx, req.Credential, candidate.APIVersion, candidate.ID, body)
		if err != nil {
			return err
		}
		if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
			return apperrors.NewNoContentError(fmt.Sprintf("[%s] empty screenplay response", candidate.ID))
		}

		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}

		parsed, err := parseSceneArray(text.String(), req.SceneCount)
		if err != nil {
			return apperrors.NewNoContentError(fmt.Sprintf("[%s] %v", candidate.ID, err))
		}
		raw = parsed
		return nil
	}

	if _, err := g.resolver.Try(ctx, models.CapabilityScript, scriptCandidates, attempt, onStatus); err != nil {
		return nil, g.diagnose(ctx, req.Credential, err, onStatus)
	}

	scenes := make([]models.Scene, len(raw))
	for i, s := range raw {
		imagePrompt := s.ImagePromptEN
		if imagePrompt == "" {
			imagePrompt = s.Description
		}
		directive := models.CameraDirective(s.CameraMove)
		scenes[i] = models.Scene{
			Index:       i,
			Description: s.Description,
			ImagePrompt: imagePrompt,
			CameraMove:  directive,
			TransformID: models.TransformIDFor(directive),
		}
	}
	return scenes, nil
}

// diagnose runs a models-list probe after a screenplay failure. A probe
// that itself hits a permission or region block explains the failure better
// than the per-candidate errors, so its classified error wins.
func (g *Generator) diagnose(ctx context.Context, credential string, original error, onStatus resolver.StatusFunc) error {
	if apperrors.IsPermissionError(original) {
		return original
	}

	if onStatus != nil {
		onStatus("checking available models...")
	}
	infos, err := g.client.ListModels(ctx, credential)
	if err != nil {
		if apperrors.IsPermissionError(err) {
			return err
		}
		return original
	}
	if onStatus != nil {
		onStatus(fmt.Sprintf("credential sees %d models, screenplay still failed", len(infos)))
	}
	return original
}

// rawScene is the wire shape the director model is instructed to return.
type rawScene struct {
	Description   string `json:"description"`
	ImagePromptEN string `json:"image_prompt_en"`
	CameraMove    string `json:"cameraMove"`
}

// parseSceneArray locates the first JSON array in the reply text and
// decodes it. Anything other than an array of exactly count objects is a
// failure.
func parseSceneArray(text string, count int) ([]rawScene, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var scenes []rawScene
	if err := json.Unmarshal([]byte(text[start:end+1]), &scenes); err != nil {
		return nil, fmt.Errorf("malformed scene array: %w", err)
	}
	if len(scenes) != count {
		return nil, fmt.Errorf("expected %d scenes, model returned %d", count, len(scenes))
	}
	return scenes, nil
}

// buildDirectorPrompt assembles the screenplay instruction: scenario, scene
// count, appearance lock, framing and character-count mode.
func buildDirectorPrompt(req models.RunRequest) string {
	var visualInstruction string
	if strings.TrimSpace(req.VisualDetails) != "" {
		visualInstruction = fmt.Sprintf(`USER-DEFINED LOCKED APPEARANCE (STRICT):
The user has explicitly defined the look: %q.
1. You MUST use these EXACT details for the characters.
2. DO NOT invent contradicting details.
3. MANDATORY: include this description in "image_prompt_en" for EVERY SINGLE SCENE.`, req.VisualDetails)
	} else {
		visualInstruction = `CRITICAL VISUAL CONTINUITY (Locked Appearance & Location):
1. Define a specific, detailed outfit for the Female character (e.g., "white summer dress, pearl earrings, long straight hair").
2. Define a specific, detailed outfit for the Male character (e.g., "blue denim shirt, silver watch, short messy hair").
3. LOCKED DETAILS: hairstyle, glasses, jewelry and makeup MUST NOT CHANGE between scenes.
4. MANDATORY: include the EXACT outfit, hairstyle and accessories in "image_prompt_en" for EVERY SINGLE SCENE.`
	}

	var aspectInstruction string
	if req.Framing == models.FramingPortrait {
		aspectInstruction = "COMPOSITION: Frame scenes VERTICALLY (Portrait 3:4). Characters centered with vertical headroom."
	} else {
		aspectInstruction = "COMPOSITION: Frame scenes HORIZONTALLY (Landscape 4:3). Cinematic wide framing, characters positioned using rule of thirds."
	}

	var characterInstruction, contextLine string
	if req.CharacterMode == models.CharacterSolo {
		contextLine = "One protagonist (solo story)."
		characterInstruction = `SOLO CHARACTER MODE:
1. This is a single-protagonist story.
2. All scenes feature ONE character only.
3. Frame the character appropriately for each camera move.`
	} else {
		contextLine = "Two protagonists (Female and Male)."
		characterInstruction = `DUAL CHARACTER MANDATE (CRITICAL):
1. Unless the camera move is "Close-up Female" or "Close-up Male", BOTH characters MUST be visible in the frame.
2. In "image_prompt_en" explicitly state: "BOTH the female character AND the male character are in frame together."
3. For "Wide Shot", "Mid Shot", "Dolly In", "Pan": always show BOTH protagonists interacting.
4. Do NOT generate solo shots unless explicitly a close-up.`
	}

	return fmt.Sprintf(`Act as an award-winning Film Director.
User Input (Scenario): %q
Task: Create a detailed screenplay with exactly %d scenes.
Context:
- %s
- Analyze the input to determine genre and tone.

%s

LOCKED LOCATION RULES:
1. ESTABLISH A SINGLE PRIMARY LOCATION (e.g., "diffused lit coffee shop interior").
2. Unless the scenario EXPLICITLY changes location, STAY IN THIS PRIMARY LOCATION.
3. Do not randomly switch from indoor to outdoor.
4. Include the location description in every scene prompt.

%s

%s

Requirements:
1. Language: Traditional Chinese (Cantonese dialogue/narrative) ONLY for "description".
2. Format: return ONLY a valid JSON array. No markdown.
3. Structure: [ { "description": "Cantonese visual description", "image_prompt_en": "Detailed English visual description INCLUDING LOCKED OUTFIT for text-to-image generation", "cameraMove": "Move Name" }, ... ]

Camera Directives: "Wide Shot", "Mid Shot", "Close-up Female", "Close-up Male", "Dolly In", "Pan".
Final Output: JSON array of %d objects.`,
		req.Scenario, req.SceneCount, contextLine, visualInstruction, aspectInstruction, characterInstruction, req.SceneCount)
}

// directiveKeywords pairs each camera directive with trigger words for the
// local heuristic.
var directiveKeywords = []struct {
	directive models.CameraDirective
	keywords  []string
}{
	{models.CameraWideShot, []string{"city", "world", "wide"}},
	{models.CameraMidShot, []string{"talk", "walk", "together"}},
	{models.CameraCloseFemale, []string{"she", "girl", "smile"}},
	{models.CameraCloseMale, []string{"he", "boy", "angular"}},
	{models.CameraDollyIn, []string{"sudden", "!"}},
	{models.CameraPan, []string{"turn", "around"}},
}

// extensionMarker flags beats synthesized by cycling when the input has
// fewer beats than requested scenes.
const extensionMarker = " (extended beat)"

// LocalScreenplay segments the scenario deterministically: split on
// sentence terminators, fall back to comma splitting when a single long
// beat results, assign directives by keyword, and cycle beats with a marker
// suffix when the input is shorter than the requested scene count.
func LocalScreenplay(scenario string, count int) []models.Scene {
	beats := splitBeats(scenario)

	scenes := make([]models.Scene, 0, count)
	for i := 0; i < count; i++ {
		beat := beats[i%len(beats)]
		if i >= len(beats) {
			beat += extensionMarker
		}
		directive := detectDirective(beat)
		scenes = append(scenes, models.Scene{
			Index:       i,
			Description: beat,
			ImagePrompt: beat,
			CameraMove:  directive,
			TransformID: models.TransformIDFor(directive),
		})
	}
	return scenes
}

// splitBeats cuts the scenario into candidate beats.
func splitBeats(scenario string) []string {
	split := func(s string, seps string) []string {
		parts := strings.FieldsFunc(s, func(r rune) bool {
			return strings.ContainsRune(seps, r)
		})
		var out []string
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}

	beats := split(scenario, "\n.。")
	if len(beats) == 1 && len(beats[0]) > 20 {
		beats = split(beats[0], ",，")
	}
	if len(beats) == 0 {
		beats = []string{"Scene start... (waiting for input)"}
	}
	return beats
}

// detectDirective matches a beat against the keyword table, falling back to
// a pseudo-random pick seeded by the beat text so runs stay deterministic.
func detectDirective(beat string) models.CameraDirective {
	t := strings.ToLower(beat)
	for _, entry := range directiveKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(t, keyword) {
				return entry.directive
			}
		}
	}

	h := fnv.New32a()
	h.Write([]byte(beat))
	return models.AllCameraDirectives[int(h.Sum32())%len(models.AllCameraDirectives)]
}
