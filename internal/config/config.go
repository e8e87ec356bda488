// Package config loads the process configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full environment surface of the tester.
type Config struct {
	// Twilio credentials and numbers.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// TargetPhoneNumber is the medical-office agent under test.
	TargetPhoneNumber string

	// PublicURL is the externally reachable base URL (e.g. an ngrok
	// tunnel) Twilio uses for webhooks and the media stream.
	PublicURL string

	// ListenAddr is the local HTTP bind address.
	ListenAddr string

	// LLM backend (OpenAI-compatible; point LLMBaseURL at Ollama for
	// local models).
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// OpenAI credentials for Whisper STT and speech TTS.
	OpenAIAPIKey string
	WhisperModel string
	TTSModel     string
	TTSVoice     string

	// SileroModelPath points at the silero ONNX model; empty selects
	// the energy-based VAD.
	SileroModelPath string

	// Call timings.
	SilenceThresholdMs    int
	TrialMessageDurationS int
	MaxCallDurationS      int

	// OutputDir is the root for transcripts and reports.
	OutputDir string

	// ScenariosDir holds the YAML scenario definitions.
	ScenariosDir string
}

// TranscriptsDir is where call transcripts are written.
func (c Config) TranscriptsDir() string {
	return filepath.Join(c.OutputDir, "transcripts")
}

// ReportsDir is where analysis reports are written.
func (c Config) ReportsDir() string {
	return filepath.Join(c.OutputDir, "reports")
}

// Load reads .env (when present) and the environment.
func Load() (Config, error) {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := Config{
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		TargetPhoneNumber: getenv("TARGET_PHONE_NUMBER", ""),
		PublicURL:         os.Getenv("PUBLIC_URL"),
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		LLMBaseURL:        getenv("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMModel:          getenv("LLM_MODEL", "llama3"),
		LLMAPIKey:         getenv("LLM_API_KEY", "ollama"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		WhisperModel:      getenv("WHISPER_MODEL", "whisper-1"),
		TTSModel:          getenv("TTS_MODEL", "tts-1"),
		TTSVoice:          getenv("TTS_VOICE", "alloy"),
		SileroModelPath:   os.Getenv("SILERO_MODEL_PATH"),
		OutputDir:         getenv("OUTPUT_DIR", "output"),
		ScenariosDir:      getenv("SCENARIOS_DIR", "scenarios"),
	}

	var err error
	if cfg.SilenceThresholdMs, err = getint("SILENCE_THRESHOLD_MS", 700); err != nil {
		return Config{}, err
	}
	if cfg.TrialMessageDurationS, err = getint("TRIAL_MESSAGE_DURATION_S", 10); err != nil {
		return Config{}, err
	}
	if cfg.MaxCallDurationS, err = getint("MAX_CALL_DURATION_S", 180); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateTelephony checks the fields required to place real calls.
func (c Config) ValidateTelephony() error {
	switch {
	case c.TwilioAccountSID == "":
		return fmt.Errorf("TWILIO_ACCOUNT_SID is not set")
	case c.TwilioAuthToken == "":
		return fmt.Errorf("TWILIO_AUTH_TOKEN is not set")
	case c.TwilioFromNumber == "":
		return fmt.Errorf("TWILIO_FROM_NUMBER is not set")
	case c.TargetPhoneNumber == "":
		return fmt.Errorf("TARGET_PHONE_NUMBER is not set")
	case c.PublicURL == "":
		return fmt.Errorf("PUBLIC_URL is not set; start a tunnel and export its URL")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
