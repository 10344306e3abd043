package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/instapay-verifier/internal/ocr"
	"github.com/zombor/instapay-verifier/internal/verification"
)

// maxUploadSize fits full-resolution phone screenshots and PDF exports
const maxUploadSize = int64(20 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// detectContentType falls back to the file extension when the part has no type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
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

// optionsFromForm overlays the form fields that are present onto the defaults
func optionsFromForm(r *http.Request, opts verification.Options) (verification.Options, error) {
	if value := strings.TrimSpace(r.FormValue("expectedAmount")); value != "" {
		opts.ExpectedAmount = verification.AmountInput(value)
	}
	if value := strings.TrimSpace(r.FormValue("maxAgeMinutes")); value != "" {
		minutes, err := strconv.Atoi(value)
		if err != nil {
			return opts, errors.New("maxAgeMinutes must be a whole number of minutes")
		}
		opts.MaxAgeMinutes = minutes
	}

	flags := []struct {
		name string
		set  func(bool)
	}{
		{"strictMetadataCheck", func(b bool) { opts.StrictMetadataCheck = b }},
		{"checkReferenceUsage", func(b bool) { opts.CheckReferenceUsage = b }},
		{"allowMoreThanExpected", func(b bool) { opts.AllowMoreThanExpected = &b }},
	}
	for _, flag := range flags {
		value := strings.TrimSpace(r.FormValue(flag.name))
		if value == "" {
			continue
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return opts, fmt.Errorf("%s must be true or false", flag.name)
		}
		flag.set(b)
	}
	return opts, nil
}

// handleVerifyUpload verifies an uploaded receipt image
func (s *Server) handleVerifyUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "File is too large. Maximum size is 20MB.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No receipt file was provided. Please upload a screenshot of your payment.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	opts, err := optionsFromForm(r, s.service.DefaultOptions())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)
	v, err := s.service.VerifyUpload(header.Filename, data, contentType, opts)
	if err != nil {
		slog.Error("Error verifying receipt", "filename", header.Filename, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, v)
}

type envelopeRequest struct {
	Envelope json.RawMessage      `json:"envelope"`
	Options  verification.Options `json:"options"`
}

// handleVerifyEnvelope verifies an envelope from an OCR run the caller already made
func (s *Server) handleVerifyEnvelope(w http.ResponseWriter, r *http.Request) {
	req := envelopeRequest{Options: s.service.DefaultOptions()}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Envelope) == 0 || string(req.Envelope) == "null" {
		jsonError(w, "envelope is required", http.StatusBadRequest)
		return
	}

	envelope, err := ocr.DecodeEnvelope(req.Envelope)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	v, err := s.service.VerifyEnvelope(envelope, req.Options)
	if err != nil {
		slog.Error("Error verifying envelope", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, v)
}

// handleListVerifications returns every stored verification
func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	verifications, err := s.service.ListVerifications()
	if err != nil {
		slog.Error("Error listing verifications", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, verifications)
}

// handleGetVerification returns a single verification
func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	v, err := s.service.GetVerification(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrVerificationNotFound) {
			corsError(w, "Verification not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting verification", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleGetVerificationFile returns the archived receipt image
func (s *Server) handleGetVerificationFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetVerificationFile(r.PathValue("id"))
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleConsumeReference marks the reference of an approved verification as used
func (s *Server) handleConsumeReference(w http.ResponseWriter, r *http.Request) {
	v, err := s.service.ConsumeReference(r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, ErrVerificationNotFound):
		jsonError(w, "Verification not found", http.StatusNotFound)
	case errors.Is(err, ErrReferenceUsed):
		jsonError(w, "Reference number already used", http.StatusConflict)
	case errors.Is(err, ErrNoReference), errors.Is(err, ErrNotApproved):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		slog.Error("Error consuming reference", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleGetReference reports whether a reference was already consumed
func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.PathValue("reference"))
	used, err := s.service.ReferenceUsed(reference)
	if err != nil {
		slog.Error("Error checking reference", "reference", reference, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reference": reference,
		"used":      used,
	})
}

// handleExport streams the verification log as a spreadsheet
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX()
	if err != nil {
		slog.Error("Error exporting verifications", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="verifications.xlsx"`)
	w.Write(data)
}
