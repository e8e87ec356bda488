// Package silero implements the VAD engine contract with the Silero
// VAD v5 ONNX model. The model takes 512-sample windows of 16 kHz
// audio plus its recurrent state and returns a speech probability;
// this wrapper carries the state and the 64-sample context tail
// between calls.
package silero

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voxqa/voxqa/pkg/ai/vad"
)

const (
	stateSize   = 2 * 1 * 128 // [2, batch=1, 128] LSTM state
	contextSize = 64          // trailing samples of the previous window at 16 kHz

	// DefaultThreshold is the speech probability above which a window
	// counts as voiced. Matches the upstream Silero default.
	DefaultThreshold = 0.5
)

// Config holds configuration for the Silero engine.
type Config struct {
	ModelPath string
	Threshold float32 // 0 means DefaultThreshold
}

// Engine runs Silero VAD inference over fixed windows. Not safe for
// concurrent use; each session owns its own instance.
type Engine struct {
	session   *ort.DynamicAdvancedSession
	threshold float32

	state   []float32
	context []float32
}

// New loads the model and prepares a session. The caller should Close
// the engine when the call ends.
func New(cfg Config) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("silero: model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("silero: model file not found: %w", err)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}

	if err := ensureOrtEnv(); err != nil {
		return nil, fmt.Errorf("silero: initialize onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("silero: create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("silero: set intra-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("silero: create session: %w", err)
	}

	return &Engine{
		session:   session,
		threshold: cfg.Threshold,
		state:     make([]float32, stateSize),
		context:   make([]float32, contextSize),
	}, nil
}

// IsSpeech implements vad.Engine.
func (e *Engine) IsSpeech(window []int16) (bool, error) {
	if len(window) != vad.WindowSize {
		return false, fmt.Errorf("silero: window must be %d samples, got %d", vad.WindowSize, len(window))
	}

	// The model input is the previous context followed by the window.
	input := make([]float32, contextSize+vad.WindowSize)
	copy(input, e.context)
	for i, s := range window {
		input[contextSize+i] = float32(s) / 32768.0
	}
	copy(e.context, input[len(input)-contextSize:])

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return false, fmt.Errorf("silero: create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), e.state)
	if err != nil {
		return false, fmt.Errorf("silero: create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{vad.SampleRate})
	if err != nil {
		return false, fmt.Errorf("silero: create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := e.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return false, fmt.Errorf("silero: inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	prob := outputs[0].(*ort.Tensor[float32]).GetData()
	copy(e.state, outputs[1].(*ort.Tensor[float32]).GetData())

	if len(prob) == 0 {
		return false, fmt.Errorf("silero: model returned empty output")
	}
	return prob[0] > e.threshold, nil
}

// Reset implements vad.Engine: clears the recurrent state and context
// between utterances.
func (e *Engine) Reset() {
	for i := range e.state {
		e.state[i] = 0
	}
	for i := range e.context {
		e.context[i] = 0
	}
}

// Close releases the ONNX session.
func (e *Engine) Close() error {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return nil
}
