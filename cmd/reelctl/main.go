// cmd/reelctl/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelforge/reelforge/internal/app"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/di"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/services"
)

var (
	flagCredential string
	flagScenario   string
	flagScenes     []string
	flagCount      int
	flagFraming    string
	flagCharacters string
	flagDetails    string
	flagVideo      bool
	flagFemaleRef  string
	flagMaleRef    string
	flagJSON       bool
)

func main() {
	root := &cobra.Command{
		Use:           "reelctl",
		Short:         "Headless driver for the reelforge video pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once and wait for the result",
		RunE:  runPipeline,
	}
	runCmd.Flags().StringVar(&flagCredential, "credential", os.Getenv("GEMINI_API_KEY"), "API key (AIza-prefixed); empty selects the local screenplay path")
	runCmd.Flags().StringVar(&flagScenario, "scenario", "", "free-text scenario for the screenplay generator")
	runCmd.Flags().StringArrayVar(&flagScenes, "scene", nil, "explicit scene text; repeatable, overrides --scenario")
	runCmd.Flags().IntVar(&flagCount, "count", 3, "number of scenes to generate")
	runCmd.Flags().StringVar(&flagFraming, "framing", "4:3", "framing mode: 4:3 or 3:4")
	runCmd.Flags().StringVar(&flagCharacters, "characters", "dual", "character mode: solo or dual")
	runCmd.Flags().StringVar(&flagDetails, "visual-details", "", "appearance/location lock text")
	runCmd.Flags().BoolVar(&flagVideo, "video", false, "enable the video synthesis stage")
	runCmd.Flags().StringVar(&flagFemaleRef, "female-ref", "", "path to the female reference image")
	runCmd.Flags().StringVar(&flagMaleRef, "male-ref", "", "path to the male reference image")
	runCmd.Flags().BoolVar(&flagJSON, "json", false, "print the final run state as JSON")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the models available to a credential",
		RunE:  listModels,
	}
	modelsCmd.Flags().StringVar(&flagCredential, "credential", os.Getenv("GEMINI_API_KEY"), "API key (AIza-prefixed)")

	root.AddCommand(runCmd, modelsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	if err := app.InitServices(cfg); err != nil {
		return err
	}

	req := models.RunRequest{
		Credential:    strings.TrimSpace(flagCredential),
		Scenario:      flagScenario,
		UserScenes:    flagScenes,
		SceneCount:    flagCount,
		Framing:       models.FramingMode(flagFraming),
		CharacterMode: models.CharacterMode(flagCharacters),
		VisualDetails: flagDetails,
		EnableVideo:   flagVideo,
	}
	if req.FemaleRef, err = loadReference(flagFemaleRef); err != nil {
		return err
	}
	if req.MaleRef, err = loadReference(flagMaleRef); err != nil {
		return err
	}

	container := di.GetContainer()
	pipeline := container.Get("pipeline").(*services.PipelineService)
	progress := container.Get("progress").(*services.ProgressService)

	state, err := pipeline.StartRun(req)
	if err != nil {
		return err
	}

	tracker, _ := progress.GetTracker(state.ID)
	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	for {
		select {
		case update := <-updates:
			if !flagJSON {
				fmt.Printf("[%3d%%] %s\n", update.Progress, update.Message)
			}
		case <-tracker.Done:
			return printResult(pipeline, state.ID)
		}
	}
}

func printResult(pipeline *services.PipelineService, id string) error {
	// the tracker closes before the final state write lands; give it a beat
	time.Sleep(100 * time.Millisecond)

	final, ok := pipeline.GetRun(id)
	if !ok {
		return fmt.Errorf("run %s disappeared", id)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	}

	fmt.Printf("run %s: %s (%s)\n", final.ID, final.Status, final.Source)
	for _, r := range final.Results {
		marker := "ok"
		if r.Status == models.SceneStatusErrored {
			marker = "ERR " + r.Error
		}
		fmt.Printf("  scene %d [%s] %s\n", r.Index+1, r.CameraMove, marker)
	}
	if final.FinalArtifact != "" {
		fmt.Println("final artifact:", final.FinalArtifact)
	}
	if final.Error != "" {
		fmt.Println("note:", final.Error)
	}
	if final.Status == models.RunStatusFailed {
		return fmt.Errorf("run failed")
	}
	return nil
}

func listModels(cmd *cobra.Command, args []string) error {
	if !models.ValidCredential(flagCredential) {
		return fmt.Errorf("invalid API key format, expected an AIza-prefixed key")
	}

	client := gemini.NewClient(gemini.DefaultBaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	infos, err := client.ListModels(ctx, flagCredential)
	if err != nil {
		return err
	}

	for _, info := range infos {
		fmt.Printf("%-55s %s\n", strings.TrimPrefix(info.Name, "models/"),
			strings.Join(info.SupportedGenerationMethods, ","))
	}
	return nil
}

func loadReference(path string) (*models.ReferenceImage, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reference %s: %w", path, err)
	}
	mime := "image/jpeg"
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		mime = "image/png"
	}
	return &models.ReferenceImage{Data: data, MIMEType: mime}, nil
}
