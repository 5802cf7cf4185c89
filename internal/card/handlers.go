package card

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/cardscan/internal/statement"
)

// maxUploadSize covers high-resolution phone photos of a statement
const maxUploadSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON writes a JSON body with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// statementResponse is the body returned for a scanned statement
type statementResponse struct {
	Fields  statement.Fields                         `json:"fields"`
	Sources map[statement.FieldName]statement.Source `json:"sources"`
	Text    string                                   `json:"text"`
	Empty   bool                                     `json:"empty"`
}

func newStatementResponse(result *statement.Result) statementResponse {
	return statementResponse{
		Fields:  result.Fields,
		Sources: result.Sources,
		Text:    result.Text,
		Empty:   result.Fields.Empty(),
	}
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListCards returns a list of all cards
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.ListCards()
	if err != nil {
		slog.Error("Error listing cards", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// handleCreateCard creates a card from a JSON body
func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req Card
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	card, err := s.service.CreateCard(&req)
	if err != nil {
		if errors.Is(err, ErrInvalidCard) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error creating card", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// handleGetCard returns a single card
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	card, err := s.service.GetCard(id)
	if err != nil {
		s.cardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleDeleteCard deletes a card
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteCard(id); err != nil {
		s.cardError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScanStatement scans an uploaded statement and returns what was found
func (s *Server) handleScanStatement(w http.ResponseWriter, r *http.Request) {
	upload, ok := readUpload(w, r)
	if !ok {
		return
	}

	result, err := s.service.ScanStatement(r.Context(), upload.filename, upload.data, upload.contentType)
	if err != nil {
		s.processingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatementResponse(result))
}

// handleScanAndApply scans an uploaded statement and merges the result into a card
func (s *Server) handleScanAndApply(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	upload, ok := readUpload(w, r)
	if !ok {
		return
	}

	card, result, err := s.service.ScanAndApply(r.Context(), id, upload.filename, upload.data, upload.contentType)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cardError(w, err)
			return
		}
		s.processingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card":      card,
		"statement": newStatementResponse(result),
	})
}

// handleApplyFields merges reviewed statement fields into a card
func (s *Server) handleApplyFields(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var fields statement.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	card, err := s.service.ApplyStatement(id, fields)
	if err != nil {
		s.cardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// cardError maps a card lookup failure to a response
func (s *Server) cardError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}
	slog.Error("Error handling card", "error", err)
	corsError(w, "Internal server error", http.StatusInternalServerError)
}

// processingError maps a pipeline failure to a response; details stay in the logs
func (s *Server) processingError(w http.ResponseWriter, err error) {
	if errors.Is(err, statement.ErrStatementProcessingFailed) {
		jsonError(w, statement.UserMessage, http.StatusUnprocessableEntity)
		return
	}
	slog.Error("Error processing statement", "error", err)
	jsonError(w, "Internal server error", http.StatusInternalServerError)
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload reads the "file" multipart field, writing the error response itself
func readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return nil, false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a statement image to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentTypeFromExt(header.Filename)
	}

	return &upload{
		filename:    header.Filename,
		contentType: strings.ToLower(strings.TrimSpace(contentType)),
		data:        data,
	}, true
}

// ContentTypeFromExt guesses the MIME type of an upload from its file extension
func ContentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
