package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheVisher/pawkit-sync/internal/models"
)

// attachmentDir groups uploads under one provider path so ListFiles can
// enumerate them.
const attachmentDir = "attachments"

// Attach uploads a file to the configured blob backend and links it to a
// card through the regular mutate-and-enqueue path, so the attachment
// reference syncs like any other field.
func (a *App) Attach(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: pawkit attach <id> <file>")
	}
	if a.blobs == nil {
		return fmt.Errorf("no attachment storage configured, set \"blob\" in the config file")
	}
	id, file := args[0], args[1]

	if _, err := a.store.Get(ctx, models.EntityCard, id); err != nil {
		return fmt.Errorf("failed to load card: %w", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	name := filepath.Base(file)
	cloudID, err := a.blobs.UploadFile(ctx, data, name, attachmentDir)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	_, err = a.store.Update(ctx, models.EntityCard, id, models.Fields{
		models.FieldAttachmentID:   cloudID,
		models.FieldAttachmentName: name,
	})
	if err != nil {
		// the card mutation failed, do not leave the upload orphaned
		if delErr := a.blobs.DeleteFile(ctx, cloudID); delErr != nil {
			a.logger.Warn(ctx, "failed to remove orphaned upload",
				"cloud_id", cloudID, "error", delErr)
		}
		return fmt.Errorf("failed to link attachment: %w", err)
	}
	a.touch(ctx)
	a.syncer.TriggerSync()

	fmt.Fprintf(a.out, "Attached %s to %s\n", name, id)
	return nil
}

// Detach unlinks a card's attachment and deletes the stored object.
func (a *App) Detach(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pawkit detach <id>")
	}
	if a.blobs == nil {
		return fmt.Errorf("no attachment storage configured, set \"blob\" in the config file")
	}
	id := args[0]

	card, err := a.store.Get(ctx, models.EntityCard, id)
	if err != nil {
		return fmt.Errorf("failed to load card: %w", err)
	}
	cloudID, _ := card.Fields[models.FieldAttachmentID].(string)
	if cloudID == "" {
		return fmt.Errorf("card %s has no attachment", id)
	}

	_, err = a.store.Update(ctx, models.EntityCard, id, models.Fields{
		models.FieldAttachmentID:   "",
		models.FieldAttachmentName: "",
	})
	if err != nil {
		return fmt.Errorf("failed to unlink attachment: %w", err)
	}
	if err := a.blobs.DeleteFile(ctx, cloudID); err != nil {
		a.logger.Warn(ctx, "failed to delete stored attachment",
			"cloud_id", cloudID, "error", err)
	}
	a.touch(ctx)
	a.syncer.TriggerSync()

	fmt.Fprintf(a.out, "Detached %s\n", id)
	return nil
}
