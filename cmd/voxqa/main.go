package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxqa/voxqa/internal/config"
	telephony "github.com/voxqa/voxqa/internal/twilio"
	llmopenai "github.com/voxqa/voxqa/pkg/ai/llm/openai"
	sttwhisper "github.com/voxqa/voxqa/pkg/ai/stt/whisper"
	ttsopenai "github.com/voxqa/voxqa/pkg/ai/tts/openai"
	"github.com/voxqa/voxqa/pkg/ai/vad"
	"github.com/voxqa/voxqa/pkg/ai/vad/silero"
	"github.com/voxqa/voxqa/pkg/analysis"
	"github.com/voxqa/voxqa/pkg/persona"
	"github.com/voxqa/voxqa/pkg/scenario"
	"github.com/voxqa/voxqa/pkg/session"
	"github.com/voxqa/voxqa/pkg/suite"
	"github.com/voxqa/voxqa/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "voxqa",
	Short: "voxqa - automated tester for AI voice agents",
	Long: `voxqa places real phone calls to an AI voice agent while playing a
scripted patient persona, then analyzes the transcript for bugs.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and media stream server without placing calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics, _ := cmd.Flags().GetBool("metrics")

		logger := setupLogger()
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		registry := session.NewRegistry()
		server := newServer(cfg, registry, logger, metrics)

		logger.Info("serving",
			slog.String("service", "voxqa"),
			slog.String("version", version.Version),
			slog.String("addr", cfg.ListenAddr))

		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	},
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Run a single scenario as a live call",
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarioID, _ := cmd.Flags().GetString("scenario")
		if scenarioID == "" {
			return fmt.Errorf("--scenario is required")
		}

		logger := setupLogger()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.ValidateTelephony(); err != nil {
			return err
		}

		scn, err := scenario.Load(cfg.ScenariosDir, scenarioID)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		registry := session.NewRegistry()
		server := newServer(cfg, registry, logger, false)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", slog.String("error", err.Error()))
			}
		}()
		defer server.Close()

		runner, err := newRunner(cfg, registry, logger)
		if err != nil {
			return err
		}

		report, err := runner.RunCall(ctx, scn)
		if err != nil {
			return err
		}

		fmt.Println(report.TranscriptText)
		fmt.Println(analysis.FormatBugReport([]*analysis.Report{report}))
		return nil
	},
}

var suiteCmd = &cobra.Command{
	Use:   "suite",
	Short: "Run all scenarios sequentially as live calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		only, _ := cmd.Flags().GetString("scenario")
		delay, _ := cmd.Flags().GetInt("delay")

		logger := setupLogger()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.ValidateTelephony(); err != nil {
			return err
		}

		scenarios, err := scenario.LoadAll(cfg.ScenariosDir)
		if err != nil {
			return err
		}
		if only != "" {
			scn, err := scenario.Load(cfg.ScenariosDir, only)
			if err != nil {
				return err
			}
			scenarios = []*scenario.Scenario{scn}
		}
		if len(scenarios) == 0 {
			return fmt.Errorf("no scenarios found in %s", cfg.ScenariosDir)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		registry := session.NewRegistry()
		server := newServer(cfg, registry, logger, false)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", slog.String("error", err.Error()))
			}
		}()
		defer server.Close()

		runner, err := newRunner(cfg, registry, logger)
		if err != nil {
			return err
		}
		runner.Delay = time.Duration(delay) * time.Second

		logger.Info("running test suite",
			slog.Int("scenarios", len(scenarios)),
			slog.String("target", cfg.TargetPhoneNumber))

		results := runner.Run(ctx, scenarios)
		fmt.Println(suite.FormatSummary(results))

		var reports []*analysis.Report
		for _, r := range results {
			if r.Report != nil {
				reports = append(reports, r.Report)
			}
		}
		if len(reports) > 0 {
			path := filepath.Join(cfg.ReportsDir(), "bug_report.md")
			if err := os.WriteFile(path, []byte(analysis.FormatBugReport(reports)), 0o644); err != nil {
				logger.Error("writing bug report failed", slog.String("error", err.Error()))
			} else {
				fmt.Printf("Bug report saved to: %s\n", path)
			}
		}
		return nil
	},
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Scenario management commands",
}

var scenariosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenario definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		scenarios, err := scenario.LoadAll(cfg.ScenariosDir)
		if err != nil {
			return err
		}
		for _, scn := range scenarios {
			fmt.Printf("%-24s %s\n", scn.ID, scn.Name)
		}
		return nil
	},
}

// newServer assembles the telephony HTTP surface around a session
// registry.
func newServer(cfg config.Config, registry *session.Registry, logger *slog.Logger, metrics bool) *http.Server {
	mux := telephony.NewMux(cfg.PublicURL, session.NewHandler(registry, logger), logger)
	if metrics {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	return &http.Server{Addr: cfg.ListenAddr, Handler: mux}
}

// newRunner wires the suite runner with live providers. The LLM, STT
// and TTS clients are stateless and shared across calls; VAD engines
// carry per-call state, so NewParams builds a fresh one per scenario.
func newRunner(cfg config.Config, registry *session.Registry, logger *slog.Logger) (*suite.Runner, error) {
	model, err := llmopenai.New(llmopenai.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
	}, logger)
	if err != nil {
		return nil, err
	}

	transcriber, err := sttwhisper.New(sttwhisper.Config{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.WhisperModel,
	}, logger)
	if err != nil {
		return nil, err
	}

	synthesizer, err := ttsopenai.New(ttsopenai.Config{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.TTSModel,
		Voice:  cfg.TTSVoice,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &suite.Runner{
		Registry: registry,
		Caller: telephony.NewCallPlacer(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken,
			cfg.TwilioFromNumber, cfg.TargetPhoneNumber,
			cfg.PublicURL, logger),
		NewParams: func(scn *scenario.Scenario) session.Params {
			return session.Params{
				Scenario:  scn,
				VAD:       newVADEngine(cfg, logger),
				STT:       transcriber,
				TTS:       synthesizer,
				Generator: persona.NewGenerator(scn, model, persona.WithLogger(logger)),
				Config: session.Config{
					SilenceThresholdMs:   float64(cfg.SilenceThresholdMs),
					TrialMessageDuration: time.Duration(cfg.TrialMessageDurationS) * time.Second,
					MaxCallDuration:      time.Duration(cfg.MaxCallDurationS) * time.Second,
					TranscriptDir:        cfg.TranscriptsDir(),
				},
				Logger: logger,
			}
		},
		Detector:    analysis.NewDetector(),
		Reviewer:    analysis.NewReviewer(model, logger),
		ReportsDir:  cfg.ReportsDir(),
		CallTimeout: time.Duration(cfg.MaxCallDurationS)*time.Second + 30*time.Second,
		Logger:      logger,
	}, nil
}

// newVADEngine prefers the silero model when configured, with the
// energy detector as fallback.
func newVADEngine(cfg config.Config, logger *slog.Logger) vad.Engine {
	if cfg.SileroModelPath == "" {
		logger.Info("using energy VAD (SILERO_MODEL_PATH not set)")
		return vad.NewEnergyEngine()
	}
	engine, err := silero.New(silero.Config{ModelPath: cfg.SileroModelPath})
	if err != nil {
		logger.Error("silero unavailable, falling back to energy VAD",
			slog.String("error", err.Error()))
		return vad.NewEnergyEngine()
	}
	return engine
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch os.Getenv("VOXQA_LOG_LEVEL") {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if os.Getenv("VOXQA_LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	serveCmd.Flags().Bool("metrics", false, "Expose expvar metrics on /debug/vars")

	callCmd.Flags().StringP("scenario", "s", "", "Scenario ID to run (e.g. schedule_new)")

	suiteCmd.Flags().StringP("scenario", "s", "", "Run only this scenario ID")
	suiteCmd.Flags().IntP("delay", "d", 10, "Seconds between calls")

	scenariosCmd.AddCommand(scenariosListCmd)
	rootCmd.AddCommand(versionCmd, serveCmd, callCmd, suiteCmd, scenariosCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
