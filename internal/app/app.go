// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/di"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/imagegen"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/resolver"
	"github.com/reelforge/reelforge/internal/screenplay"
	"github.com/reelforge/reelforge/internal/services"
	"github.com/reelforge/reelforge/internal/stitcher"
	"github.com/reelforge/reelforge/internal/storage"
	"github.com/reelforge/reelforge/internal/utils"
	"github.com/reelforge/reelforge/internal/videogen"
)

// InitServices builds every service in dependency order and registers them
// in the global container. Safe to call once at startup.
func InitServices(cfg *config.Config) error {
	container := di.GetContainer()
	logger := utils.GetLogger()

	if cfg.LogDir != "" {
		if err := utils.InitLogger(filepath.Join(cfg.LogDir, "reelforge.log")); err != nil {
			return fmt.Errorf("logger init failed: %w", err)
		}
	}
	if cfg.DebugMode {
		logger.SetLogLevel(utils.DEBUG)
	}

	uploads, err := storage.NewArtifactStore(cfg.UploadDir())
	if err != nil {
		return fmt.Errorf("upload store init failed: %w", err)
	}
	outputs, err := storage.NewArtifactStore(cfg.OutputDir())
	if err != nil {
		return fmt.Errorf("output store init failed: %w", err)
	}
	container.Register("uploads", uploads)
	container.Register("outputs", outputs)

	client := gemini.NewClient(cfg.GeminiBaseURL)
	container.Register("gemini", client)

	imageLock := models.NewModelLock()
	container.Register("imageLock", imageLock)

	res := resolver.New(client, imageLock, cfg.RateLimitDefaultWait)
	container.Register("resolver", res)

	container.Register("screenplay", screenplay.NewGenerator(client, res))
	container.Register("imagegen", imagegen.NewStage(client, res))
	container.Register("videogen", videogen.NewStage(client))

	stitchService := stitcher.NewService(uploads, outputs)
	container.Register("stitchService", stitchService)

	coordinator := stitcher.NewCoordinator(cfg.StitchServerURL)
	container.Register("stitchCoordinator", coordinator)

	progress := services.NewProgressService()
	container.Register("progress", progress)

	pipeline := services.NewPipelineService(
		container.Get("screenplay").(*screenplay.Generator),
		container.Get("imagegen").(*imagegen.Stage),
		container.Get("videogen").(*videogen.Stage),
		coordinator,
		progress,
		imageLock,
		cfg.InterSceneDelay,
		cfg.ClipDurationSec,
	)
	container.Register("pipeline", pipeline)

	logger.Infof("services initialized: %d registered", len(container.GetNames()))
	return nil
}
