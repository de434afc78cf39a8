// internal/models/run.go
package models

import "time"

// FramingMode selects the output composition.
type FramingMode string

const (
	FramingLandscape FramingMode = "4:3"
	FramingPortrait  FramingMode = "3:4"
)

// CharacterMode distinguishes a solo story from a dual-protagonist one.
type CharacterMode string

const (
	CharacterSolo CharacterMode = "solo"
	CharacterDual CharacterMode = "dual"
)

// RunRequest is everything the editor supplies to start a production run.
// Either Scenario (AI screenplay) or UserScenes (user-authored mode) drives
// scene creation; UserScenes wins when non-empty.
type RunRequest struct {
	Credential    string        `json:"credential"`
	Scenario      string        `json:"scenario"`
	UserScenes    []string      `json:"user_scenes,omitempty"`
	SceneCount    int           `json:"scene_count"`
	Framing       FramingMode   `json:"framing"`
	CharacterMode CharacterMode `json:"character_mode"`
	VisualDetails string        `json:"visual_details,omitempty"`
	EnableVideo   bool          `json:"enable_video"`

	FemaleRef *ReferenceImage `json:"female_ref,omitempty"`
	MaleRef   *ReferenceImage `json:"male_ref,omitempty"`
}

// RunStatus is the lifecycle of a production run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunState is the live record of a run: the screenplay source, the growing
// result list (append-only, single writer) and the final artifact location
// once stitching finishes. Partial runs keep whatever results exist.
type RunState struct {
	ID            string         `json:"id"`
	Status        RunStatus      `json:"status"`
	Source        string         `json:"source,omitempty"`
	Results       []*SceneResult `json:"results"`
	FinalArtifact string         `json:"final_artifact,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at,omitempty"`
}
