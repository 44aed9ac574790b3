package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixProfile   = "prof_"
	PrefixOverride  = "ovr_"
	PrefixOverlay   = "ovl_"
	PrefixChallenge = "chl_"
)

// NewProfile generates a new focus profile ID with prof_ prefix
func NewProfile() string {
	return PrefixProfile + uuid.New().String()
}

// NewOverride generates a new override log entry ID with ovr_ prefix
func NewOverride() string {
	return PrefixOverride + uuid.New().String()
}

// NewOverlay generates a new overlay handle with ovl_ prefix
func NewOverlay() string {
	return PrefixOverlay + uuid.New().String()
}

// NewChallenge generates a new override challenge ID with chl_ prefix
func NewChallenge() string {
	return PrefixChallenge + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
