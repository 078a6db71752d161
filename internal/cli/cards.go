package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/TheVisher/pawkit-sync/internal/models"
	"github.com/TheVisher/pawkit-sync/internal/store"
)

const defaultWorkspace = "default"

func (a *App) Add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(a.out)
	workspace := fs.String("w", defaultWorkspace, "workspace id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: pawkit add <url> [title]")
	}

	url := fs.Arg(0)
	title := url
	if fs.NArg() > 1 {
		title = fs.Arg(1)
	}

	card := models.NewEntity(models.EntityCard, models.NewCard(*workspace, url, title), a.store.Now())
	if err := a.store.Put(ctx, card); err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	a.touch(ctx)
	a.syncer.TriggerSync()

	fmt.Fprintf(a.out, "Added %s\n", card.ID)
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.out)
	workspace := fs.String("w", "", "filter by workspace id")
	deleted := fs.Bool("deleted", false, "show only deleted cards")
	unsynced := fs.Bool("unsynced", false, "show only cards with unpushed changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cards, err := a.store.Query(ctx, models.EntityCard, store.QueryOptions{
		WorkspaceID:  *workspace,
		OnlyDeleted:  *deleted,
		UnsyncedOnly: *unsynced,
	})
	if err != nil {
		return fmt.Errorf("failed to list cards: %w", err)
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tURL\tSTATE")
	for _, c := range cards {
		title, _ := c.Fields[models.FieldTitle].(string)
		url, _ := c.Fields[models.FieldURL].(string)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, title, url, cardState(c))
	}
	return w.Flush()
}

func cardState(e *models.Entity) string {
	switch {
	case e.Deleted:
		return "deleted"
	case e.LastError != "":
		return "error: " + e.LastError
	case !e.Synced:
		return "pending"
	default:
		return "synced"
	}
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pawkit delete <id>")
	}
	if err := a.store.SoftDelete(ctx, models.EntityCard, args[0]); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	a.touch(ctx)
	a.syncer.TriggerSync()
	fmt.Fprintf(a.out, "Deleted %s\n", args[0])
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pawkit restore <id>")
	}
	if err := a.store.Restore(ctx, models.EntityCard, args[0]); err != nil {
		return fmt.Errorf("failed to restore card: %w", err)
	}
	a.touch(ctx)
	a.syncer.TriggerSync()
	fmt.Fprintf(a.out, "Restored %s\n", args[0])
	return nil
}
