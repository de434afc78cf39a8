// internal/stitcher/service.go
package stitcher

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/storage"
	"github.com/reelforge/reelforge/internal/utils"
)

// Service owns the clip upload and concatenation endpoints. Clips are
// stored through the artifact store and joined with ffmpeg's concat
// demuxer without re-encoding.
type Service struct {
	uploads *storage.ArtifactStore
	outputs *storage.ArtifactStore
	logger  *utils.Logger

	// injectable for tests
	runFFmpeg func(listPath, outputPath string) error
}

// NewService creates a stitching service over the given stores.
func NewService(uploads, outputs *storage.ArtifactStore) *Service {
	s := &Service{
		uploads: uploads,
		outputs: outputs,
		logger:  utils.GetLogger(),
	}
	s.runFFmpeg = s.execFFmpeg
	return s
}

// RegisterRoutes mounts the stitching endpoints on a gin router. The raw
// clip and output directories are also browsable for debugging.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/save-video", s.SaveVideoHandler)
	r.POST("/api/concat-videos", s.ConcatHandler)
	r.GET("/api/download/:filename", s.DownloadHandler)
	r.StaticFS("/uploads", gin.Dir(s.uploads.BaseDir, false))
	r.StaticFS("/output", gin.Dir(s.outputs.BaseDir, false))
}

// SaveVideoHandler accepts one multipart clip upload and returns the
// server-side path the concat request will reference.
func (s *Service) SaveVideoHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing video file field"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable video upload"})
		return
	}
	defer file.Close()

	filename, fullPath, err := s.uploads.SaveStream(file, fileHeader.Filename)
	if err != nil {
		s.logger.Errorf("save-video failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store video"})
		return
	}

	s.logger.Infof("stored clip %s (%d bytes)", filename, fileHeader.Size)
	c.JSON(http.StatusOK, gin.H{
		"filePath": fullPath,
		"filename": filename,
	})
}

type concatRequest struct {
	VideoPaths []string `json:"videoPaths"`
}

// ConcatHandler joins previously uploaded clips in request order. A single
// path skips ffmpeg entirely and is republished as the output.
func (s *Service) ConcatHandler(c *gin.Context) {
	var req concatRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.VideoPaths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "videoPaths must be a non-empty array"})
		return
	}

	for _, path := range req.VideoPaths {
		if !s.ownedByUploads(path) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("path %q is not a stored clip", path)})
			return
		}
	}

	outputName, err := s.Concat(req.VideoPaths)
	if err != nil {
		s.logger.Errorf("concat failed: %v", err)
		status := http.StatusInternalServerError
		if apperrors.IsValidationError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filename":    outputName,
		"downloadUrl": "/api/download/" + outputName,
	})
}

// DownloadHandler serves a stitched output by name.
func (s *Service) DownloadHandler(c *gin.Context) {
	fullPath, err := s.outputs.Resolve(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such output"})
		return
	}
	c.FileAttachment(fullPath, filepath.Base(fullPath))
}

// Concat joins the given clip files and returns the output filename.
func (s *Service) Concat(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", apperrors.NewValidationError("no clips to concatenate", nil)
	}

	// one clip: publish it as the output untouched
	if len(paths) == 1 {
		data, err := os.ReadFile(paths[0])
		if err != nil {
			return "", apperrors.NewConcatError("single clip unreadable", err)
		}
		name, _, err := s.outputs.SaveBytes(data, paths[0])
		if err != nil {
			return "", apperrors.NewConcatError("failed to publish single clip", err)
		}
		return name, nil
	}

	listPath, err := s.writeConcatList(paths)
	if err != nil {
		return "", err
	}
	defer os.Remove(listPath)

	outputName := fmt.Sprintf("final_%s.mp4", uuid.New().String())
	outputPath := filepath.Join(s.outputs.BaseDir, outputName)

	if err := s.runFFmpeg(listPath, outputPath); err != nil {
		os.Remove(outputPath)
		return "", apperrors.NewConcatError(fmt.Sprintf("ffmpeg concat of %d clips failed", len(paths)), err)
	}

	s.logger.Infof("stitched %d clips into %s", len(paths), outputName)
	return outputName, nil
}

// writeConcatList writes the ffmpeg concat demuxer manifest, one file
// directive per clip in playback order.
func (s *Service) writeConcatList(paths []string) (string, error) {
	var b strings.Builder
	for _, path := range paths {
		escaped := strings.ReplaceAll(path, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	listPath := filepath.Join(s.uploads.BaseDir, fmt.Sprintf("concat_%s.txt", uuid.New().String()))
	if err := os.WriteFile(listPath, []byte(b.String()), 0644); err != nil {
		return "", apperrors.NewConcatError("failed to write concat manifest", err)
	}
	return listPath, nil
}

// execFFmpeg runs the stream-copy concat. Clips come from the same
// producer so codecs match and re-encoding is unnecessary.
func (s *Service) execFFmpeg(listPath, outputPath string) error {
	cmd := exec.Command("ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, tail(string(output), 400))
	}
	return nil
}

func (s *Service) ownedByUploads(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	base, err := filepath.Abs(s.uploads.BaseDir)
	if err != nil {
		return false
	}
	return strings.HasPrefix(abs, base+string(filepath.Separator))
}

func tail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[len(text)-n:]
}
