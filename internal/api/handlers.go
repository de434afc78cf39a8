// internal/api/handlers.go
package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/services"
	"github.com/reelforge/reelforge/internal/utils"
)

// Handler carries the services behind the HTTP surface.
type Handler struct {
	Pipeline *services.PipelineService
	Progress *services.ProgressService
	Gemini   *gemini.Client
	logger   *utils.Logger
}

// NewHandler creates the API handler set.
func NewHandler(pipeline *services.PipelineService, progress *services.ProgressService, client *gemini.Client) *Handler {
	return &Handler{
		Pipeline: pipeline,
		Progress: progress,
		Gemini:   client,
		logger:   utils.GetLogger(),
	}
}

// startRunRequest is the JSON body of POST /api/runs. Reference images ride
// as base64 payloads with their mime type.
type startRunRequest struct {
	Credential    string   `json:"credential"`
	Scenario      string   `json:"scenario"`
	UserScenes    []string `json:"user_scenes"`
	SceneCount    int      `json:"scene_count"`
	Framing       string   `json:"framing"`
	CharacterMode string   `json:"character_mode"`
	VisualDetails string   `json:"visual_details"`
	EnableVideo   bool     `json:"enable_video"`

	FemaleRef *referencePayload `json:"female_ref"`
	MaleRef   *referencePayload `json:"male_ref"`
}

type referencePayload struct {
	Data     string `json:"data"` // base64
	MIMEType string `json:"mime_type"`
}

// StartRun launches a production run and returns its initial state.
func (h *Handler) StartRun(c *gin.Context) {
	var body startRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	req := models.RunRequest{
		Credential:    strings.TrimSpace(body.Credential),
		Scenario:      strings.TrimSpace(body.Scenario),
		UserScenes:    body.UserScenes,
		SceneCount:    body.SceneCount,
		Framing:       models.FramingMode(body.Framing),
		CharacterMode: models.CharacterMode(body.CharacterMode),
		VisualDetails: body.VisualDetails,
		EnableVideo:   body.EnableVideo,
	}
	if req.Framing == "" {
		req.Framing = models.FramingLandscape
	}
	if req.CharacterMode == "" {
		req.CharacterMode = models.CharacterDual
	}
	if req.SceneCount == 0 {
		req.SceneCount = 3
	}

	var err error
	if req.FemaleRef, err = decodeReference(body.FemaleRef); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "female reference: " + err.Error()})
		return
	}
	if req.MaleRef, err = decodeReference(body.MaleRef); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "male reference: " + err.Error()})
		return
	}

	state, err := h.Pipeline.StartRun(req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	h.logger.Infof("run %s started", state.ID)
	c.JSON(http.StatusAccepted, state)
}

// GetRun returns the current state of a run, including partial results.
func (h *Handler) GetRun(c *gin.Context) {
	state, ok := h.Pipeline.GetRun(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such run"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// ListModels proxies the upstream model listing for diagnostics. The
// credential comes from a header so it never lands in access logs.
func (h *Handler) ListModels(c *gin.Context) {
	credential := c.GetHeader("X-Api-Credential")
	if !models.ValidCredential(credential) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid API key format, expected an AIza-prefixed key"})
		return
	}

	infos, err := h.Gemini.ListModels(c.Request.Context(), credential)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": infos})
}

// renderError maps the error taxonomy onto HTTP statuses.
func (h *Handler) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrorTypePermission:
		status = http.StatusForbidden
	case apperrors.ErrorTypeRateLimited:
		status = http.StatusTooManyRequests
	case apperrors.ErrorTypeNetwork:
		status = http.StatusBadGateway
	}

	payload := gin.H{"error": err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		payload["code"] = appErr.Code
		if appErr.Hint != "" {
			payload["hint"] = appErr.Hint
		}
	}
	c.JSON(status, payload)
}

func decodeReference(p *referencePayload) (*models.ReferenceImage, error) {
	if p == nil || p.Data == "" {
		return nil, nil
	}
	raw := p.Data
	if idx := strings.Index(raw, ","); idx >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	mime := p.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return &models.ReferenceImage{Data: data, MIMEType: mime}, nil
}
