package statement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zombor/cardscan/internal/scanning"
)

// ErrStatementProcessingFailed is the single failure kind callers of Process see
var ErrStatementProcessingFailed = errors.New("statement processing failed")

// UserMessage is shown to people when a statement could not be processed
const UserMessage = "could not process the statement, try a clearer image"

// ProcessingError wraps the recognizer failure behind a failed Process call
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", UserMessage, e.Err)
}

// Unwrap exposes the sentinel and the cause to errors.Is/As
func (e *ProcessingError) Unwrap() []error {
	return []error{ErrStatementProcessingFailed, e.Err}
}

// Recognizer turns a statement image into text
type Recognizer interface {
	Recognize(ctx context.Context, img scanning.Image, onStage scanning.StageFunc) (string, error)
}

// State is a step of one Process call
type State int

const (
	StateIdle State = iota
	StateRecognizing
	StateExtracting
	StateReconciling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecognizing:
		return "recognizing"
	case StateExtracting:
		return "extracting"
	case StateReconciling:
		return "reconciling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is an advisory completion report
type Progress struct {
	State    State
	Fraction float64
}

// Observer receives progress reports. It is called synchronously from Process.
type Observer func(Progress)

// Fraction milestones. Only StateDone reports 1.
const (
	progressRecognizing = 0.10
	progressExtracting  = 0.90
	progressReconciling = 0.95
	progressCeiling     = 0.99
	progressDone        = 1.0
)

var stageProgress = map[scanning.Stage]float64{
	scanning.StageInitializing: 0.20,
	scanning.StagePreparing:    0.40,
	scanning.StageRecognizing:  0.60,
}

// Result is the outcome of a successful Process call
type Result struct {
	Fields  Fields               `json:"fields"`
	Sources map[FieldName]Source `json:"sources"`
	Text    string               `json:"text"`
}

// Pipeline turns statement images into reconciled fields
type Pipeline struct {
	recognizer Recognizer
}

// NewPipeline creates a Pipeline that shares the given recognizer across calls
func NewPipeline(recognizer Recognizer) *Pipeline {
	return &Pipeline{recognizer: recognizer}
}

// Process recognizes, extracts and reconciles one statement image. Only recognition
// can fail; an empty or partial Result is a success. observe may be nil.
func (p *Pipeline) Process(ctx context.Context, img scanning.Image, observe Observer) (*Result, error) {
	progress := &tracker{observe: observe}
	logger := slog.With("content_type", img.ContentType, "file_size", len(img.Data))

	progress.move(StateRecognizing, progressRecognizing)
	text, err := p.recognizer.Recognize(ctx, img, func(stage scanning.Stage) {
		logger.Debug("Recognition stage", "stage", stage)
		progress.move(StateRecognizing, stageProgress[stage])
	})
	if err != nil {
		progress.move(StateFailed, progress.fraction)
		logger.Error("Failed to recognize statement", "error", err)
		return nil, &ProcessingError{Err: err}
	}
	logger.Debug("Recognized statement text", "length", len(text))

	progress.move(StateExtracting, progressExtracting)
	extracted := Extract(text)

	progress.move(StateReconciling, progressReconciling)
	reconciled := Reconcile(extracted)

	result := &Result{
		Fields:  reconciled,
		Sources: Sources(extracted, reconciled),
		Text:    text,
	}
	progress.move(StateDone, progressDone)

	logger.Info("Processed statement",
		"detected", extracted.Present(),
		"fields", reconciled.Present(),
	)
	return result, nil
}

// tracker keeps reported fractions non-decreasing and below 1 until Done
type tracker struct {
	observe  Observer
	state    State
	fraction float64
}

func (t *tracker) move(state State, fraction float64) {
	if fraction < t.fraction {
		fraction = t.fraction
	}
	if state != StateDone && fraction > progressCeiling {
		fraction = progressCeiling
	}
	t.state = state
	t.fraction = fraction
	if t.observe != nil {
		t.observe(Progress{State: state, Fraction: fraction})
	}
}
