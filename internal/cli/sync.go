package cli

import (
	"context"
	"fmt"
)

func (a *App) Sync(ctx context.Context) error {
	a.touch(ctx)
	if err := a.syncer.SyncNow(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Fprintln(a.out, "Sync complete.")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	pending, err := a.store.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	parked, err := a.store.ParkedItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	lastPull, err := a.store.LastPulledAt(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sync state: %w", err)
	}

	fmt.Fprintf(a.out, "Device:        %s\n", a.tracker.DeviceID())
	fmt.Fprintf(a.out, "Pending items: %d\n", pending)
	fmt.Fprintf(a.out, "Parked items:  %d\n", len(parked))
	if lastPull.IsZero() {
		fmt.Fprintln(a.out, "Last pull:     never")
	} else {
		fmt.Fprintf(a.out, "Last pull:     %s\n", lastPull.Format("2006-01-02 15:04:05 MST"))
	}
	for _, it := range parked {
		fmt.Fprintf(a.out, "  parked %s/%s: %s\n", it.EntityType, it.EntityID, it.LastError)
	}
	return nil
}
