package arm

import (
	"github.com/pkg/errors"

	"resourcemachine/internal/zkvm"
)

// Key and authorization errors.
var (
	ErrInvalidNullifierKey  = errors.New("invalid nullifier key")
	ErrInvalidSigningKey    = errors.New("invalid signing key")
	ErrInvalidPublicKey     = errors.New("invalid public key")
	ErrVerifyingKeyMismatch = errors.New("verifying key mismatch")
)

// Malformed cryptographic data.
var (
	ErrInvalidDelta              = errors.New("invalid delta")
	ErrInvalidSignature          = errors.New("invalid signature")
	ErrInvalidRcv                = errors.New("invalid rcv")
	ErrInvalidLeaf               = errors.New("invalid leaf")
	ErrInvalidResourceKind       = errors.New("invalid resource kind")
	ErrInvalidResourceNonce      = errors.New("invalid resource nonce")
	ErrMerkleDepthMismatch       = errors.New("merkle path depth mismatch")
	ErrEmptyTree                 = errors.New("empty tree")
	ErrTreeTooLarge              = errors.New("tree too large")
	ErrSerialization             = errors.New("serialization error")
	ErrDeserialization           = errors.New("deserialization error")
	ErrMissingField              = errors.New("missing field")
	ErrInvalidComplianceInstance = errors.New("invalid compliance instance")
)

// Proof lifecycle and protocol state.
var (
	ErrDeltaProofGenerationFailed   = errors.New("delta proof generation failed")
	ErrDeltaProofVerificationFailed = errors.New("delta proof verification failed")
	ErrExpectedDeltaProof           = errors.New("expected delta proof, transaction holds a witness")
	ErrTagNotFound                  = errors.New("tag not found")
	ErrComposeDeltaMismatch         = errors.New("cannot compose transactions with different delta states")
	ErrConstraintViolated           = errors.New("constraint not satisfied")
)

// Errors surfaced by the proving engine.
var (
	ErrProveFailed                 = zkvm.ErrProveFailed
	ErrProofVerificationFailed     = zkvm.ErrProofVerificationFailed
	ErrJournalDecoding             = zkvm.ErrJournalDecoding
	ErrInnerReceiptDeserialization = zkvm.ErrInnerReceiptDeserialization
	ErrUnsupportedProofType        = zkvm.ErrUnsupportedProofType
)

var malformed = []error{
	ErrInvalidDelta,
	ErrInvalidRcv,
	ErrInvalidSignature,
	ErrInvalidPublicKey,
	ErrInvalidLeaf,
	ErrMerkleDepthMismatch,
	ErrDeserialization,
	ErrMissingField,
	ErrInvalidComplianceInstance,
	ErrJournalDecoding,
	ErrInnerReceiptDeserialization,
	ErrUnsupportedProofType,
}

// IsMalformed reports whether err was caused by input that could not be decoded
// into well-formed protocol data, as opposed to well-formed data that failed a
// cryptographic check.
func IsMalformed(err error) bool {
	for _, m := range malformed {
		if errors.Is(err, m) {
			return true
		}
	}
	return false
}
