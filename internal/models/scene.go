// internal/models/scene.go
package models

import "strings"

// CameraDirective is the shot vocabulary the screenplay works with.
// Every scene carries exactly one directive.
type CameraDirective string

const (
	CameraWideShot    CameraDirective = "Wide Shot"
	CameraMidShot     CameraDirective = "Mid Shot"
	CameraCloseFemale CameraDirective = "Close-up Female"
	CameraCloseMale   CameraDirective = "Close-up Male"
	CameraDollyIn     CameraDirective = "Dolly In"
	CameraPan         CameraDirective = "Pan"
)

// AllCameraDirectives lists the six directives in their canonical order.
var AllCameraDirectives = []CameraDirective{
	CameraWideShot,
	CameraMidShot,
	CameraCloseFemale,
	CameraCloseMale,
	CameraDollyIn,
	CameraPan,
}

// Transform ids drive the compositor's crop selection.
const (
	TransformWide        = 0
	TransformDolly       = 1
	TransformCloseFemale = 2
	TransformCloseMale   = 3
	TransformMid         = 4
)

// TransformIDFor maps a camera directive name to its crop transform.
// Pan shares the mid-shot framing. Unknown names fall back to wide.
func TransformIDFor(directive CameraDirective) int {
	n := strings.ToLower(string(directive))
	switch {
	case strings.Contains(n, "wide") || strings.Contains(n, "est"):
		return TransformWide
	case strings.Contains(n, "dolly") || strings.Contains(n, "zoom"):
		return TransformDolly
	case strings.Contains(n, "female") && strings.Contains(n, "close"):
		return TransformCloseFemale
	case strings.Contains(n, "male") && strings.Contains(n, "close"):
		return TransformCloseMale
	case strings.Contains(n, "mid") || strings.Contains(n, "pan") || strings.Contains(n, "interaction"):
		return TransformMid
	default:
		return TransformWide
	}
}

// Scene is one beat of the screenplay. Created once by the screenplay
// generator and immutable afterwards; every downstream stage reads it.
type Scene struct {
	Index       int             `json:"index"`
	Description string          `json:"description"`
	ImagePrompt string          `json:"image_prompt"`
	CameraMove  CameraDirective `json:"camera_move"`
	TransformID int             `json:"transform_id"`
}

// Screenplay is the generator's output: an ordered scene list plus a label
// identifying whether a remote model or the local heuristic produced it.
type Screenplay struct {
	Source string  `json:"source"`
	Scenes []Scene `json:"scenes"`
}
