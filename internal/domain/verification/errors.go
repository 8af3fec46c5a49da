package verification

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityMissing signals that no authenticated caller is available.
	ErrIdentityMissing = errors.New("verification: identity missing")
	// ErrInvalidClaim indicates an unknown claim name or wire code.
	ErrInvalidClaim = errors.New("verification: invalid claim")
	// ErrInvalidSession covers missing, mismatched, expired or consumed correlation tokens.
	ErrInvalidSession = errors.New("verification: invalid session")
	// ErrExchangeFailed wraps every code exchange failure.
	ErrExchangeFailed = errors.New("verification: exchange failed")
	// ErrProviderUnavailable indicates a network or 5xx failure at the provider.
	ErrProviderUnavailable = errors.New("verification: provider unavailable")
	// ErrMalformedResponse indicates an unparseable or incomplete provider payload.
	ErrMalformedResponse = errors.New("verification: malformed provider response")
	// ErrWitnessUnavailable indicates the account cannot back the requested claim.
	ErrWitnessUnavailable = errors.New("verification: witness unavailable for claim")
	// ErrProofGenerationFailed wraps prover failures.
	ErrProofGenerationFailed = errors.New("verification: proof generation failed")
	// ErrSubmissionRejected wraps registry rejections.
	ErrSubmissionRejected = errors.New("verification: submission rejected")
)

// ProviderRejectedError reports a provider refusal with its error code.
type ProviderRejectedError struct {
	Status int
	Code   string
}

func (e *ProviderRejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("verification: provider rejected request: status=%d", e.Status)
	}
	return fmt.Sprintf("verification: provider rejected request: status=%d code=%s", e.Status, e.Code)
}

// SubmissionRejectedError carries the registry's reason for refusing a proof.
type SubmissionRejectedError struct {
	Reason string
}

func (e *SubmissionRejectedError) Error() string {
	return "verification: submission rejected: " + e.Reason
}

// Is lets errors.Is match ErrSubmissionRejected.
func (e *SubmissionRejectedError) Is(target error) bool {
	return target == ErrSubmissionRejected
}

// FailureReason is the stable, user-safe failure category.
type FailureReason string

const (
	ReasonIdentityMissing       FailureReason = "identity_missing"
	ReasonInvalidSession        FailureReason = "invalid_session"
	ReasonExchangeFailed        FailureReason = "exchange_failed"
	ReasonProofGenerationFailed FailureReason = "proof_generation_failed"
	ReasonSubmissionRejected    FailureReason = "submission_rejected"
	ReasonInternal              FailureReason = "internal_error"
)

// ReasonOf classifies err into a FailureReason.
func ReasonOf(err error) FailureReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIdentityMissing):
		return ReasonIdentityMissing
	case errors.Is(err, ErrInvalidSession):
		return ReasonInvalidSession
	case errors.Is(err, ErrExchangeFailed):
		return ReasonExchangeFailed
	case errors.Is(err, ErrProofGenerationFailed):
		return ReasonProofGenerationFailed
	case errors.Is(err, ErrSubmissionRejected):
		return ReasonSubmissionRejected
	default:
		return ReasonInternal
	}
}

// UserMessage renders err as text that is safe to show to end users. Only
// registry rejection reasons are passed through.
func UserMessage(err error) string {
	switch ReasonOf(err) {
	case ReasonIdentityMissing:
		return "Sign in before verifying a channel."
	case ReasonInvalidSession:
		return "This verification link is invalid or has expired. Please start again."
	case ReasonExchangeFailed, ReasonProofGenerationFailed:
		return "Verification failed. Please try again."
	case ReasonSubmissionRejected:
		var rejected *SubmissionRejectedError
		if errors.As(err, &rejected) && rejected.Reason != "" {
			return "Verification was rejected by the registry: " + rejected.Reason
		}
		return "Verification was rejected by the registry."
	case "":
		return ""
	default:
		return "Internal error. Please try again later."
	}
}
