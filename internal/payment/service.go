package payment

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/instapay-verifier/internal/ocr"
	"github.com/zombor/instapay-verifier/internal/verification"
)

// IDGenerator generates unique IDs for verifications
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config holds service-wide verification settings
type Config struct {
	// Defaults are the options used when a request does not override them
	Defaults verification.Options
	// AutoConsume marks the reference of every approved receipt as used
	AutoConsume bool
}

// Service runs uploaded receipts through OCR and verification and keeps the results
type Service struct {
	db          DB
	provider    ocr.Provider
	storage     Storage
	verifier    *verification.Verifier
	config      Config
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, provider ocr.Provider, storage Storage, verifier *verification.Verifier, config Config) *Service {
	return NewServiceWithDeps(db, provider, storage, verifier, config, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, provider ocr.Provider, storage Storage, verifier *verification.Verifier, config Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		provider:    provider,
		storage:     storage,
		verifier:    verifier,
		config:      config,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// DefaultOptions returns a copy of the configured verification options
func (s *Service) DefaultOptions() verification.Options {
	opts := s.config.Defaults
	if opts.AllowMoreThanExpected != nil {
		allow := *opts.AllowMoreThanExpected
		opts.AllowMoreThanExpected = &allow
	}
	return opts
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
	safeExtension       = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

// sanitizeFilename strips the long, noisy names phones give screenshots
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	if !safeExtension.MatchString(ext) {
		ext = ""
	}
	return base + ext
}

// extract runs the OCR provider. Any failure to read the image becomes a
// failed envelope so the decision engine reports it to the payer.
func (s *Service) extract(data []byte, contentType string) *ocr.Envelope {
	if s.provider == nil {
		slog.Error("No OCR provider configured")
		return ocr.Failed(ocr.InvalidReceiptMessage)
	}

	envelope, err := s.provider.Extract(data, contentType)
	if err != nil {
		slog.Warn("Failed to extract receipt",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return ocr.Failed(ocr.InvalidReceiptMessage)
	}
	if envelope == nil {
		return ocr.Failed(ocr.InvalidReceiptMessage)
	}
	return envelope
}

// VerifyUpload archives a receipt image, runs it through OCR and verification, and saves the result
func (s *Service) VerifyUpload(filename string, data []byte, contentType string, opts verification.Options) (*Verification, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	archivePath := path.Join(now.Format("2006/01/02"), fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)))
	savedPath, err := s.storage.Save(archivePath, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	envelope := s.extract(data, contentType)
	v := s.newVerification(id, now, envelope, opts)
	v.Filename = savedPath
	v.ContentType = contentType

	if err := s.save(v); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, err
	}
	return v, nil
}

// VerifyEnvelope verifies an envelope produced by an OCR run elsewhere and saves the result
func (s *Service) VerifyEnvelope(envelope *ocr.Envelope, opts verification.Options) (*Verification, error) {
	v := s.newVerification(s.idGenerator.Generate(), s.timeSource.Now(), envelope, opts)
	if err := s.save(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) newVerification(id string, now time.Time, envelope *ocr.Envelope, opts verification.Options) *Verification {
	result := s.verifier.ProcessFullVerification(envelope, opts)

	v := &Verification{
		ID:        id,
		CreatedAt: now,
		Result:    result,
	}
	// The verifier already reported a malformed envelope; the record just has no fields
	if fields, err := verification.ExtractFields(result.OCRResult); err == nil {
		v.Reference = fields.Reference
		v.Amount = fields.Amount
	}
	return v
}

// save stores a verification, consuming its reference first when auto-consume is on
func (s *Service) save(v *Verification) error {
	if s.config.AutoConsume && v.Approved() && v.Reference != "" {
		consumedAt := s.timeSource.Now()
		if err := s.db.MarkReferenceUsed(v.Reference, v.ID, consumedAt); err != nil {
			slog.Warn("Failed to consume reference", "id", v.ID, "reference", v.Reference, "error", err)
		} else {
			v.ConsumedAt = &consumedAt
		}
	}

	if err := s.db.SaveVerification(v); err != nil {
		return fmt.Errorf("saving verification to database: %w", err)
	}

	slog.Info("Verification saved",
		"id", v.ID,
		"reference", v.Reference,
		"decision", v.Decision.Decision,
		"primary_code", v.Decision.PrimaryCode,
	)
	return nil
}

// GetVerification retrieves a verification by ID
func (s *Service) GetVerification(id string) (*Verification, error) {
	v, err := s.db.GetVerification(id)
	if err != nil {
		return nil, fmt.Errorf("getting verification: %w", err)
	}
	return v, nil
}

// ListVerifications returns all verifications
func (s *Service) ListVerifications() ([]*Verification, error) {
	verifications, err := s.db.ListVerifications()
	if err != nil {
		return nil, fmt.Errorf("listing verifications: %w", err)
	}
	return verifications, nil
}

// GetVerificationFile retrieves the archived receipt image for a verification
func (s *Service) GetVerificationFile(id string) ([]byte, string, error) {
	v, err := s.db.GetVerification(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting verification: %w", err)
	}
	if v.Filename == "" {
		return nil, "", fmt.Errorf("verification %s has no file: %w", id, ErrVerificationNotFound)
	}

	data, err := s.storage.Get(v.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting verification file: %w", err)
	}
	return data, v.ContentType, nil
}

// ConsumeReference records that the booking accepted an approved payment, so its
// reference cannot be used again
func (s *Service) ConsumeReference(id string) (*Verification, error) {
	v, err := s.db.GetVerification(id)
	if err != nil {
		return nil, fmt.Errorf("getting verification: %w", err)
	}
	if v.Reference == "" {
		return nil, ErrNoReference
	}
	if !v.Approved() {
		return nil, ErrNotApproved
	}
	if v.ConsumedAt != nil {
		return v, nil
	}

	now := s.timeSource.Now()
	if err := s.db.MarkReferenceUsed(v.Reference, v.ID, now); err != nil {
		return nil, fmt.Errorf("consuming reference: %w", err)
	}

	v.ConsumedAt = &now
	if err := s.db.SaveVerification(v); err != nil {
		return nil, fmt.Errorf("saving verification to database: %w", err)
	}

	slog.Info("Reference consumed", "id", v.ID, "reference", v.Reference)
	return v, nil
}

// ReferenceUsed reports whether a reference was already consumed
func (s *Service) ReferenceUsed(reference string) (bool, error) {
	used, err := s.db.Contains(reference)
	if err != nil {
		return false, fmt.Errorf("checking reference: %w", err)
	}
	return used, nil
}
