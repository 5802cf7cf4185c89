package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ErrEmptyImage is returned when the submitted payload has no bytes
var ErrEmptyImage = errors.New("empty image")

// pdfToImage renders the first page of a PDF statement as PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Statement summaries (limit, balance, due date) are printed on the first page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// imageToPNG converts any supported image format to PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's image package doesn't know HEIC/HEIF (phone cameras)
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if errors.Is(err, image.ErrFormat) {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, WEBP, BMP, TIFF, HEIC, HEIF, PDF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// convertToPNG converts PDFs and non-PNG images to PNG format.
// Returns the PNG data and whether conversion occurred.
func convertToPNG(imageData []byte, mimeType string) ([]byte, bool, error) {
	switch {
	case mimeType == "application/pdf":
		pngData, err := pdfToImage(imageData)
		if err != nil {
			return nil, false, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, true, nil
	case mimeType != "image/png" || isHEICFormat(imageData):
		pngData, err := imageToPNG(imageData, mimeType)
		if err != nil {
			return nil, false, fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, true, nil
	}

	// Declared PNG: make sure it actually decodes before handing it to a backend
	if _, err := png.DecodeConfig(bytes.NewReader(imageData)); err != nil {
		return nil, false, fmt.Errorf("decoding PNG: %w", err)
	}
	return imageData, false, nil
}

// prepareImageData normalizes the MIME type and converts the image to PNG if needed.
// Returns the final image data, the MIME type to use, and whether conversion occurred.
func prepareImageData(imageData []byte, contentType string) ([]byte, string, bool, error) {
	if len(imageData) == 0 {
		return nil, "", false, ErrEmptyImage
	}

	mimeType := normalizeMimeType(contentType)
	if mimeType == "" {
		mimeType = "image/jpeg" // default
	}

	finalImageData, converted, err := convertToPNG(imageData, mimeType)
	if err != nil {
		return nil, "", false, err
	}

	// Everything leaving this function is PNG
	return finalImageData, "image/png", converted, nil
}

// normalizeMimeType lowercases the type and drops parameters such as "; charset=..."
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
