// internal/services/pipeline_service.go
package services

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/compositor"
	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/imagegen"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/screenplay"
	"github.com/reelforge/reelforge/internal/stitcher"
	"github.com/reelforge/reelforge/internal/utils"
	"github.com/reelforge/reelforge/internal/videogen"
)

// SourceUserScenes labels screenplays authored scene by scene by the caller.
const SourceUserScenes = "User Scenes"

// userSceneRotation is the camera pattern applied to caller-authored
// scenes, cycled when there are more than ten.
var userSceneRotation = []models.CameraDirective{
	models.CameraWideShot,
	models.CameraMidShot,
	models.CameraCloseFemale,
	models.CameraCloseMale,
	models.CameraDollyIn,
	models.CameraPan,
	models.CameraMidShot,
	models.CameraWideShot,
	models.CameraCloseFemale,
	models.CameraDollyIn,
}

// PipelineService orchestrates a full run: screenplay, then per scene an
// image and optionally a video, strictly in order, then final assembly.
// One run at a time; a second request is rejected while one is active.
type PipelineService struct {
	screenplays *screenplay.Generator
	images      *imagegen.Stage
	videos      *videogen.Stage
	stitch      *stitcher.Coordinator
	progress    *ProgressService
	logger      *utils.Logger

	interSceneDelay time.Duration
	clipDuration    int
	metrics         *utils.PipelineMetrics

	mu      sync.Mutex
	active  bool
	runs    map[string]*models.RunState
	imgLock *models.ModelLock

	// injectable for tests
	sleep func(time.Duration)
}

// NewPipelineService wires the pipeline over its stages.
func NewPipelineService(
	screenplays *screenplay.Generator,
	images *imagegen.Stage,
	videos *videogen.Stage,
	stitch *stitcher.Coordinator,
	progress *ProgressService,
	imgLock *models.ModelLock,
	interSceneDelay time.Duration,
	clipDuration int,
) *PipelineService {
	if interSceneDelay <= 0 {
		interSceneDelay = time.Second
	}
	if clipDuration <= 0 {
		clipDuration = 8
	}
	return &PipelineService{
		screenplays:     screenplays,
		images:          images,
		videos:          videos,
		stitch:          stitch,
		progress:        progress,
		logger:          utils.GetLogger(),
		metrics:         utils.NewPipelineMetrics(),
		interSceneDelay: interSceneDelay,
		clipDuration:    clipDuration,
		runs:            make(map[string]*models.RunState),
		imgLock:         imgLock,
		sleep:           time.Sleep,
	}
}

// StartRun validates the request, registers the run and launches it in the
// background. The returned state is the initial snapshot.
func (p *PipelineService) StartRun(req models.RunRequest) (*models.RunState, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil, apperrors.NewValidationError("a run is already in progress", nil)
	}
	p.active = true

	state := &models.RunState{
		ID:        uuid.New().String(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}
	p.runs[state.ID] = state
	snapshot := p.snapshot(state)
	p.mu.Unlock()

	tracker := p.progress.CreateTracker(state.ID)
	go p.execute(context.Background(), req, state, tracker)

	return &snapshot, nil
}

// GetRun returns a copy of the run's current state.
func (p *PipelineService) GetRun(id string) (*models.RunState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.runs[id]
	if !ok {
		return nil, false
	}
	s := p.snapshot(state)
	return &s, true
}

// execute drives the whole run. Scene failures are isolated: an errored
// scene is recorded and the run moves on.
func (p *PipelineService) execute(ctx context.Context, req models.RunRequest, state *models.RunState, tracker *ProgressTracker) {
	defer func() {
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
	}()

	onStatus := func(msg string) { tracker.UpdateProgress(0, msg) }

	play, err := p.buildScreenplay(ctx, req, onStatus)
	if err != nil {
		p.finishFailed(state, tracker, err)
		return
	}

	p.mu.Lock()
	state.Source = play.Source
	p.mu.Unlock()

	femaleRef, maleRef := p.decodeReferences(req)

	total := len(play.Scenes)
	for i, scene := range play.Scenes {
		base := i * 100 / total
		tracker.UpdateProgress(base, fmt.Sprintf("scene %d/%d: %s", i+1, total, scene.CameraMove))

		result := p.processScene(ctx, req, scene, femaleRef, maleRef, onStatus)

		p.mu.Lock()
		state.Results = append(state.Results, result)
		p.mu.Unlock()

		if result.Status == models.SceneStatusErrored {
			p.logger.Warnf("scene %d errored: %s", i+1, result.Error)
		}

		if i < total-1 {
			p.sleep(p.interSceneDelay)
		}
	}

	p.assemble(ctx, state, tracker, onStatus)
}

// processScene runs one scene through the image stage and, when enabled,
// the video stage. The scene still is produced by the compositor when no
// credential is available.
func (p *PipelineService) processScene(ctx context.Context, req models.RunRequest, scene models.Scene, femaleRef, maleRef image.Image, onStatus func(string)) *models.SceneResult {
	result := models.NewSceneResult(scene)
	ref := selectReference(scene.CameraMove, req.FemaleRef, req.MaleRef)

	if models.ValidCredential(req.Credential) {
		imgResult, err := p.images.Generate(ctx, imagegen.Request{
			Credential:    req.Credential,
			Prompt:        scene.ImagePrompt,
			Reference:     ref,
			Framing:       req.Framing,
			VisualDetails: req.VisualDetails,
		}, onStatus)
		if err != nil {
			result.Status = models.SceneStatusErrored
			result.Error = err.Error()
			return result
		}
		result.ImageArtifact = imgResult.DataURI
		result.ProducerLabel = imgResult.ModelID
	} else {
		still, err := compositor.ComposePNG(femaleRef, maleRef, scene.TransformID, scene.Description)
		if err != nil {
			result.Status = models.SceneStatusErrored
			result.Error = fmt.Sprintf("no image source for scene: %v", err)
			return result
		}
		result.ImageArtifact = still
		result.ProducerLabel = "Local Compositor"
	}

	if req.EnableVideo && models.ValidCredential(req.Credential) {
		videoResult, err := p.videos.Generate(ctx, videogen.Request{
			Credential:    req.Credential,
			Prompt:        scene.Description,
			ImageDataURI:  result.ImageArtifact,
			DurationSec:   p.clipDuration,
			VisualDetails: req.VisualDetails,
		}, onStatus)
		if err != nil {
			// the still survives; only the clip is missing
			result.Status = models.SceneStatusErrored
			result.Error = err.Error()
			return result
		}
		result.VideoArtifact = videoResult.Artifact
		result.ProducerLabel = videoResult.ModelID
	}

	result.Status = models.SceneStatusSucceeded
	return result
}

// assemble decides the final artifact: none, the single clip directly, or
// the stitched film. A stitch failure leaves the scene artifacts standing.
func (p *PipelineService) assemble(ctx context.Context, state *models.RunState, tracker *ProgressTracker, onStatus func(string)) {
	p.mu.Lock()
	results := make([]*models.SceneResult, len(state.Results))
	copy(results, state.Results)
	p.mu.Unlock()

	videos := models.CountVideos(results)
	summary := fmt.Sprintf("run completed, %d/%d scenes carry real video", videos, len(results))

	switch videos {
	case 0:
		p.finishCompleted(state, tracker, "", summary)
		return
	case 1:
		// a single clip is the final artifact as-is, no stitching round-trip
		for _, r := range results {
			if r.HasVideo() {
				p.finishCompleted(state, tracker, r.VideoArtifact, summary)
				return
			}
		}
	}

	finalURL, err := p.stitch.Stitch(ctx, results, onStatus)
	if err != nil {
		p.mu.Lock()
		state.Status = models.RunStatusCompleted
		state.Error = fmt.Sprintf("stitching failed, per-scene clips remain available: %v", err)
		state.FinishedAt = time.Now()
		p.mu.Unlock()
		tracker.Complete(summary + ", final assembly failed")
		return
	}
	p.finishCompleted(state, tracker, finalURL, summary)
}

func (p *PipelineService) finishCompleted(state *models.RunState, tracker *ProgressTracker, artifact, message string) {
	if p.imgLock != nil {
		if locked := p.imgLock.Get(); locked != nil {
			p.logger.Infof("image model locked for session: %s", locked.ID)
		}
	}
	p.mu.Lock()
	state.Status = models.RunStatusCompleted
	state.FinalArtifact = artifact
	state.FinishedAt = time.Now()
	scenes := len(state.Results)
	videos := models.CountVideos(state.Results)
	elapsed := state.FinishedAt.Sub(state.StartedAt)
	p.mu.Unlock()
	p.metrics.RecordRun("completed", scenes, videos, elapsed)
	tracker.Complete(message)
}

func (p *PipelineService) finishFailed(state *models.RunState, tracker *ProgressTracker, err error) {
	p.mu.Lock()
	state.Status = models.RunStatusFailed
	state.Error = err.Error()
	state.FinishedAt = time.Now()
	scenes := len(state.Results)
	elapsed := state.FinishedAt.Sub(state.StartedAt)
	p.mu.Unlock()
	p.metrics.RecordRun("failed", scenes, 0, elapsed)
	tracker.Fail(err.Error())
	p.logger.Errorf("run %s failed: %v", state.ID, err)
}

// buildScreenplay resolves the scene list: caller-authored scenes get the
// fixed camera rotation, otherwise the generator decides remote vs local.
func (p *PipelineService) buildScreenplay(ctx context.Context, req models.RunRequest, onStatus func(string)) (*models.Screenplay, error) {
	if len(req.UserScenes) > 0 {
		scenes := make([]models.Scene, len(req.UserScenes))
		for i, text := range req.UserScenes {
			directive := userSceneRotation[i%len(userSceneRotation)]
			scenes[i] = models.Scene{
				Index:       i,
				Description: text,
				ImagePrompt: text,
				CameraMove:  directive,
				TransformID: models.TransformIDFor(directive),
			}
		}
		return &models.Screenplay{Source: SourceUserScenes, Scenes: scenes}, nil
	}

	return p.screenplays.Generate(ctx, req, onStatus)
}

// decodeReferences decodes the uploaded reference images once per run for
// the compositor path. Decode failures degrade to a missing reference.
func (p *PipelineService) decodeReferences(req models.RunRequest) (female, male image.Image) {
	var err error
	if female, err = compositor.DecodeReference(req.FemaleRef); err != nil {
		p.logger.Warnf("female reference undecodable: %v", err)
		female = nil
	}
	if male, err = compositor.DecodeReference(req.MaleRef); err != nil {
		p.logger.Warnf("male reference undecodable: %v", err)
		male = nil
	}
	return female, male
}

// selectReference picks which reference rides along to the image stage:
// the subject the camera is on, else whichever reference exists.
func selectReference(directive models.CameraDirective, female, male *models.ReferenceImage) *models.ReferenceImage {
	switch directive {
	case models.CameraCloseMale:
		if male != nil {
			return male
		}
		return female
	case models.CameraCloseFemale:
		if female != nil {
			return female
		}
		return male
	default:
		if female != nil {
			return female
		}
		return male
	}
}

func validateRequest(req models.RunRequest) error {
	if len(req.UserScenes) == 0 && req.Scenario == "" {
		return apperrors.NewValidationError("a scenario or explicit scenes are required", nil)
	}
	if req.Credential != "" && !models.ValidCredential(req.Credential) {
		return apperrors.NewValidationError("invalid API key format, expected an AIza-prefixed key", nil)
	}
	if req.EnableVideo && req.Credential == "" {
		return apperrors.NewValidationError("the video stage requires a credential", nil)
	}
	if len(req.UserScenes) == 0 && req.SceneCount <= 0 {
		return apperrors.NewValidationError("scene count must be positive", nil)
	}
	return nil
}

// SetSleeper overrides the inter-scene sleep. Test hook.
func (p *PipelineService) SetSleeper(sleep func(time.Duration)) {
	if sleep != nil {
		p.sleep = sleep
	}
}

// snapshot copies the run state under the caller's lock.
func (p *PipelineService) snapshot(state *models.RunState) models.RunState {
	s := *state
	s.Results = make([]*models.SceneResult, len(state.Results))
	copy(s.Results, state.Results)
	return s
}
