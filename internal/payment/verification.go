package payment

import (
	"errors"
	"time"

	"github.com/zombor/instapay-verifier/internal/verification"
)

var (
	// ErrVerificationNotFound is returned when no verification has the requested ID
	ErrVerificationNotFound = errors.New("verification not found")
	// ErrReferenceUsed is returned when a reference was already consumed by another verification
	ErrReferenceUsed = errors.New("reference already used")
	// ErrNoReference is returned when consuming a verification whose receipt had no reference
	ErrNoReference = errors.New("verification has no reference number")
	// ErrNotApproved is returned when consuming a verification that was not approved
	ErrNotApproved = errors.New("verification was not approved")
)

// Verification is one stored run of the pipeline against a receipt
type Verification struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	Amount      string     `json:"amount,omitempty"`
	ConsumedAt  *time.Time `json:"consumedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`

	*verification.Result
}

// Approved is true when the decision lets the booking go ahead
func (v *Verification) Approved() bool {
	return v.Result != nil && v.Result.Decision != nil && v.Result.Decision.Decision == verification.OutcomeApproved
}

// ConsumedReference records when a reference was accepted for a booking
type ConsumedReference struct {
	Reference      string    `json:"reference"`
	VerificationID string    `json:"verificationId"`
	ConsumedAt     time.Time `json:"consumedAt"`
}
