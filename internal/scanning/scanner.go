package scanning

import "context"

// transcriptionPrompt is the shared prompt used by all LLM backends. Backends must return
// the text as printed so the statement parser sees the original wording and separators.
const transcriptionPrompt = `You are an OCR engine. Transcribe all text visible in this credit card statement image.

Rules:
- Reproduce the text verbatim, in reading order, one printed line per output line
- Keep numbers exactly as printed, including "$", "." and "," separators
- Keep dates exactly as printed (e.g. 15/01/2024)
- Keep the original language; do not translate, summarize or explain
- Do not use markdown code blocks
- If there is no readable text, return an empty response`

// Image is a statement image submitted for recognition
type Image struct {
	Data        []byte
	ContentType string
}

// Backend turns an image into text
type Backend interface {
	// Name identifies the backend in logs and errors
	Name() string

	// Recognize returns the best-effort transcription of the image
	Recognize(ctx context.Context, imageData []byte, contentType string) (string, error)

	// Close releases the backend's resources
	Close() error
}

// Strategy builds one backend. Init may be slow (client setup, model probe) and is
// attempted at most once per Recognizer initialization.
type Strategy struct {
	Name string
	Init func(ctx context.Context) (Backend, error)
}

// Stage marks a step inside a single Recognize call
type Stage int

const (
	StageInitializing Stage = iota
	StagePreparing
	StageRecognizing
)

func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "initializing"
	case StagePreparing:
		return "preparing"
	case StageRecognizing:
		return "recognizing"
	default:
		return "unknown"
	}
}

// StageFunc observes stage changes during Recognize. It may be nil.
type StageFunc func(Stage)
