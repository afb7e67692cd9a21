package commands

import (
	"time"

	pkgerrors "commodities/pkg/errors"

	"github.com/google/uuid"
)

// RebuildIndexCommand recomputes derived values and publishes a fresh read index
type RebuildIndexCommand struct {
	RunID string
	// Owner identifies the process holding the rebuild lock
	Owner string
	// DryRun computes and projects without writing anything
	DryRun bool
	// RequestedAt is stamped on the emitted events
	RequestedAt time.Time
}

// NewRebuildIndexCommand creates a command with a fresh run id
func NewRebuildIndexCommand(owner string, dryRun bool) RebuildIndexCommand {
	return RebuildIndexCommand{
		RunID:       uuid.NewString(),
		Owner:       owner,
		DryRun:      dryRun,
		RequestedAt: time.Now().UTC(),
	}
}

// Validate validates the command
func (c RebuildIndexCommand) Validate() error {
	if _, err := uuid.Parse(c.RunID); err != nil {
		return pkgerrors.NewValidationError("run id must be a UUID")
	}
	if c.Owner == "" {
		return pkgerrors.NewValidationError("owner is required")
	}
	return nil
}
