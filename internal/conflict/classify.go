package conflict

import "github.com/TheVisher/pawkit-sync/internal/models"

// Class says how an incoming server record relates to the local replica.
type Class int

const (
	// ClassClean means the local row is absent or fully synced: apply the
	// server record as-is.
	ClassClean Class = iota

	// ClassLocalAhead means the incoming record is the base the pending
	// local change was made from. Nothing to do; the queued push will
	// supersede it.
	ClassLocalAhead

	// ClassConflict means both sides moved: the local row has unsynced
	// changes and the server record is newer than their base.
	ClassConflict
)

// Classify places an incoming server record against the local row. A nil
// local means the entity is new to this device.
func Classify(local *models.Entity, serverVersion int64) Class {
	if local == nil || local.Synced {
		return ClassClean
	}
	if serverVersion <= local.ServerVersion {
		return ClassLocalAhead
	}
	return ClassConflict
}
