package server

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	maxAddressLength = 100 // Solana addresses are 44 chars, give buffer
	maxTitleLength   = 200
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

	// Valid transaction signature: base58, 87-88 chars for a 64-byte signature
	validSignatureRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{80,90}$`)
)

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// validateSignature validates a transaction signature string.
func validateSignature(signature string) error {
	if signature == "" {
		return errorf("signature is required")
	}

	if !validSignatureRegex.MatchString(signature) {
		return errorf("invalid signature format: must be a base58-encoded transaction signature")
	}

	return nil
}

// validateRole validates a user role.
func validateRole(role string) error {
	if role == "" {
		return errorf("role is required")
	}

	if role != "creator" && role != "buyer" {
		return errorf("invalid role: must be 'creator' or 'buyer'")
	}

	return nil
}

// validateTitle validates a listing title.
func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errorf("title is required")
	}

	if len(title) > maxTitleLength {
		return errorf("title too long: maximum length is %d characters", maxTitleLength)
	}

	return nil
}

// parseID parses a path value as a UUID.
func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errorf("invalid id: must be a UUID")
	}
	return id, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
