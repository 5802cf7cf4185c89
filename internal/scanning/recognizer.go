package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Recognizer owns the lazily-initialized backend shared by every scan in the process.
// The first call walks the strategies in order and caches the first backend that
// initializes; if all fail the Recognizer stays uninitialized and a later call tries again.
// Concurrent callers during an in-flight initialization wait for it and share its result.
// A caller whose context ends stops waiting with ctx.Err(); the attempt carries on for the rest.
type Recognizer struct {
	strategies []Strategy

	backend atomic.Pointer[backendHandle]
	group   singleflight.Group

	closeMu sync.Mutex
	closed  bool
}

type backendHandle struct {
	Backend
}

// NewRecognizer creates a Recognizer that tries strategies in the given order,
// most preferred first
func NewRecognizer(strategies ...Strategy) *Recognizer {
	return &Recognizer{strategies: strategies}
}

// Recognize returns the text found in the image. onStage may be nil.
func (r *Recognizer) Recognize(ctx context.Context, img Image, onStage StageFunc) (string, error) {
	report(onStage, StageInitializing)
	backend, err := r.ensure(ctx)
	if err != nil {
		return "", err
	}

	report(onStage, StagePreparing)
	pngData, mimeType, converted, err := prepareImageData(img.Data, img.ContentType)
	if err != nil {
		return "", &RecognitionError{Backend: backend.Name(), Err: err}
	}
	if converted {
		slog.Debug("Converted image for recognition",
			"content_type", img.ContentType,
			"original_size", len(img.Data),
			"converted_size", len(pngData),
		)
	}

	report(onStage, StageRecognizing)
	text, err := backend.Recognize(ctx, pngData, mimeType)
	if err != nil {
		return "", &RecognitionError{Backend: backend.Name(), Err: err}
	}
	return cleanTranscript(text), nil
}

// Backend returns the name of the initialized backend, or "" before initialization
func (r *Recognizer) Backend() string {
	if h := r.backend.Load(); h != nil {
		return h.Name()
	}
	return ""
}

// Close releases the cached backend. The Recognizer must not be used afterwards.
func (r *Recognizer) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	r.closed = true
	h := r.backend.Swap(nil)
	if h == nil {
		return nil
	}
	return h.Close()
}

// ensure returns the cached backend, initializing it on first use. The attempt runs
// detached from any one caller, so a caller that gives up only stops waiting for it.
func (r *Recognizer) ensure(ctx context.Context) (Backend, error) {
	if h := r.backend.Load(); h != nil {
		return h.Backend, nil
	}

	initCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("init", func() (interface{}, error) {
		// Another caller may have finished initializing between Load and DoChan
		if h := r.backend.Load(); h != nil {
			return h, nil
		}
		h, err := r.initialize(initCtx)
		if err != nil {
			return nil, err
		}

		r.closeMu.Lock()
		defer r.closeMu.Unlock()
		if r.closed {
			h.Close()
			return nil, fmt.Errorf("recognizer closed: %w", ErrRecognizerUnavailable)
		}
		r.backend.Store(h)
		return h, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*backendHandle).Backend, nil
	}
}

func (r *Recognizer) initialize(ctx context.Context) (*backendHandle, error) {
	attempts := make([]error, 0, len(r.strategies))
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slog.Info("Initializing recognizer backend...", "backend", s.Name)
		backend, err := s.Init(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("Recognizer backend unavailable, trying next", "backend", s.Name, "error", err)
			attempts = append(attempts, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		slog.Info("Recognizer backend ready", "backend", backend.Name())
		return &backendHandle{Backend: backend}, nil
	}
	return nil, &UnavailableError{Attempts: attempts}
}

func report(fn StageFunc, stage Stage) {
	if fn != nil {
		fn(stage)
	}
}
