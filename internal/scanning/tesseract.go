package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements Backend with a local Tesseract install via gosseract.
// gosseract clients are not safe for concurrent use, so each call gets its own.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a Tesseract backend. Languages default to Spanish then English.
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"spa", "eng"}
	}
	return &Tesseract{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

// TesseractStrategy builds the baseline CPU backend
func TesseractStrategy(languages ...string) Strategy {
	return Strategy{
		Name: "tesseract",
		Init: func(ctx context.Context) (Backend, error) {
			t := NewTesseract(languages...)
			if err := t.probe(); err != nil {
				return nil, err
			}
			return t, nil
		},
	}
}

// Name returns the backend identifier
func (t *Tesseract) Name() string { return "tesseract" }

// probe runs the engine once on a blank page so missing language data fails here
// instead of on the first statement
func (t *Tesseract) probe() error {
	c := t.clientFactory()
	defer c.Close()

	if v := c.Version(); v == "" {
		return fmt.Errorf("tesseract library not available")
	}
	if err := c.SetLanguage(t.languages...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}

	blank := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, blank); err != nil {
		return fmt.Errorf("encoding probe image: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if _, err := c.Text(); err != nil {
		return fmt.Errorf("loading tesseract languages %s: %w", strings.Join(t.languages, "+"), err)
	}
	return nil
}

// Recognize transcribes an image
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(imageData); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close is a no-op; clients are released after each call
func (t *Tesseract) Close() error {
	return nil
}
