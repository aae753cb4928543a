package cmd

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/beam"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/cost"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/metadata"
	internalobs "github.com/jflournoy/image-gen-pipe-v2-sub003/internal/observability"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/rank"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/pkg/config"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/pkg/observability"
)

var (
	runConfigPath string
	runPrompt     string
	runOutputDir  string
	runHTTPPort   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a new beam-search session from a prompt",
	Long: `run loads a SessionConfig, generates a fresh session ID, and drives
the beam-search orchestrator to completion: expanding candidates, ranking
them with a vision-model ensemble, and selecting a global winner.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to a SessionConfig YAML file (required)")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "the user prompt to generate images for (required)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "override the config's output_dir")
	runCmd.Flags().IntVar(&runHTTPPort, "http-port", 9090, "port for the metrics/health HTTP server")
	_ = runCmd.MarkFlagRequired("config")
	_ = runCmd.MarkFlagRequired("prompt")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runOutputDir != "" {
		cfg.OutputDir = runOutputDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := internalobs.InitFromEnv(); err != nil {
		log.Printf("tracing init failed, continuing without spans: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := internalobs.Shutdown(shutdownCtx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	observability.InitMetrics()
	healthChecker := observability.InitHealthChecker()
	healthChecker.RegisterCheck(observability.PingCheck())
	obsServer := observability.NewServer(runHTTPPort)
	go func() {
		log.Printf("metrics/health server listening on :%d", runHTTPPort)
		if err := obsServer.Start(); err != nil {
			log.Printf("observability server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("observability server shutdown error: %v", err)
		}
	}()

	sessionID := newSessionID()
	now := time.Now()
	tracker, err := metadata.Initialize(cfg.OutputDir, sessionID, runPrompt, cfg, now)
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	log.Printf("session %s writing to %s", sessionID, tracker.Dir())

	costTracker := cost.NewTracker(nil)

	textModel, err := buildTextModel(cfg, costTracker)
	if err != nil {
		return fmt.Errorf("build text model: %w", err)
	}
	visionComparator, err := buildVisionComparator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build vision comparator: %w", err)
	}
	imageGenerator, err := buildImageGenerator(ctx, cfg, tracker.Dir())
	if err != nil {
		return fmt.Errorf("build image generator: %w", err)
	}

	alignmentWeight := cfg.AlignmentWeight
	voterFactory := func() *rank.EnsembleVoter {
		ranker := rank.NewPairwiseRanker(visionComparator, alignmentWeight, rand.New(rand.NewSource(time.Now().UnixNano())))
		return rank.NewEnsembleVoter(ranker)
	}

	orchestrator := beam.New(cfg, beam.Collaborators{
		TextModel:      textModel,
		ImageGenerator: imageGenerator,
		VoterFactory:   voterFactory,
	}, tracker)

	observability.SetActiveSessions(1)
	result, err := orchestrator.Run(ctx, runPrompt)
	observability.SetActiveSessions(0)
	if err != nil {
		observability.RecordSessionCompleted("aborted")
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	observability.RecordSessionCompleted("won")

	totals, costs, records := costTracker.Totals()
	if err := tracker.PersistTokens(totals, costs, records, time.Now()); err != nil {
		log.Printf("failed to persist token totals: %v", err)
	}

	log.Printf("session %s winner: iteration %d, candidate %d", sessionID, result.WinnerIteration, result.WinnerCandidate)
	cmd.Printf("winner: iteration=%d candidate=%d dir=%s\n", result.WinnerIteration, result.WinnerCandidate, tracker.Dir())
	return nil
}
