// internal/models/result.go
package models

// SceneStatus tracks a scene through the pipeline.
type SceneStatus string

const (
	SceneStatusInit      SceneStatus = "init"
	SceneStatusSucceeded SceneStatus = "succeeded"
	SceneStatusErrored   SceneStatus = "errored"
)

// SceneResult is the mutable per-scene record. One is created per scene,
// filled in as the image and video stages complete, and never shared
// between scenes. Results[i].Index always equals i.
type SceneResult struct {
	Scene

	ImageArtifact string      `json:"image_artifact,omitempty"`
	VideoArtifact string      `json:"video_artifact,omitempty"`
	ProducerLabel string      `json:"producer_label,omitempty"`
	Status        SceneStatus `json:"status"`
	Error         string      `json:"error,omitempty"`
}

// HasVideo reports whether the video stage produced a clip for this scene.
func (r *SceneResult) HasVideo() bool {
	return r.VideoArtifact != ""
}

// NewSceneResult starts a result record for a scene.
func NewSceneResult(scene Scene) *SceneResult {
	return &SceneResult{
		Scene:  scene,
		Status: SceneStatusInit,
	}
}

// CountVideos returns how many results carry a real video clip.
func CountVideos(results []*SceneResult) int {
	n := 0
	for _, r := range results {
		if r.HasVideo() {
			n++
		}
	}
	return n
}
