package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/TheVisher/pawkit-sync/internal/enrich"
)

func (a *App) Enrich(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(a.out)
	metaURL := fs.String("meta", "", "metadata unfurl endpoint")
	articleURL := fs.String("article", "", "readability endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pawkit enrich [-meta url] [-article url] <id>")
	}

	var (
		fetcher   enrich.MetadataFetcher
		extractor enrich.ArticleExtractor
	)
	if *metaURL != "" {
		fetcher = &enrich.HTTPMetadataFetcher{Endpoint: *metaURL}
	}
	if *articleURL != "" {
		extractor = &enrich.HTTPArticleExtractor{Endpoint: *articleURL}
	}
	if fetcher == nil && extractor == nil {
		return fmt.Errorf("at least one of -meta or -article is required")
	}

	svc := enrich.NewService(a.store, fetcher, extractor, a.logger)
	if err := svc.EnrichCard(ctx, fs.Arg(0)); err != nil {
		return fmt.Errorf("enrichment failed: %w", err)
	}
	a.syncer.TriggerSync()
	fmt.Fprintf(a.out, "Enriched %s\n", fs.Arg(0))
	return nil
}
