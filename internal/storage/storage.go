package storage

import (
	"focusguard/internal/core"
)

// Storage defines the interface for data persistence
type Storage interface {
	core.UsageStorage
	core.AppLimitStorage
	core.ProfileStorage
	core.BreakStorage
	core.OverrideLogStorage
	core.StrictModeStorage
	core.MilestoneStorage

	// Lifecycle
	Close() error
}
