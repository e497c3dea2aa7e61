package confirmations

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/registry"
	"github.com/ctsr-project/ctsr/pkg/trials"
)

// captureSnapshotTx freezes the current state of one link and its system
// instance under a confirmation. Snapshots are immutable and unique per
// (confirmation, link) pair; a second capture is a conflict.
func (e *Engine) captureSnapshotTx(tx *gorm.DB, confirmationID string, link *trials.TrialSystemLink) error {
	var existing int64
	if err := tx.Model(&LinkSnapshot{}).
		Where("confirmation_id = ? AND link_id = ?", confirmationID, link.ID).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("check existing snapshot: %w", err)
	}
	if existing > 0 {
		return apierrors.Conflict("snapshot already captured for link %s under confirmation %s", link.ID, confirmationID)
	}

	var instance registry.SystemInstance
	if err := tx.First(&instance, "id = ?", link.InstanceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apierrors.NotFound("system instance", link.InstanceID)
		}
		return fmt.Errorf("load system instance for snapshot: %w", err)
	}

	snap := LinkSnapshot{
		ID:                 uuid.New().String(),
		ConfirmationID:     confirmationID,
		LinkID:             link.ID,
		InstanceID:         instance.ID,
		InstanceState:      registry.StateMap(&instance),
		CriticalityAt:      link.Criticality,
		ValidationStatusAt: instance.ValidationStatusCode,
		PlatformVersionAt:  instance.PlatformVersion,
		AssignmentStatusAt: string(link.Status),
	}
	if err := tx.Create(&snap).Error; err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}
