// Package enrich fills in card metadata fetched from the web: page
// title, description, thumbnail and readable article text. Enrichment
// writes go through the normal mutation path flagged as additive, so
// they never contest a user's concurrent edit.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/models"
	"github.com/TheVisher/pawkit-sync/internal/store"
)

// Metadata is what a page preview needs.
type Metadata struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Article is extracted readable content.
type Article struct {
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
}

// MetadataFetcher resolves a page URL to preview metadata.
type MetadataFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Metadata, error)
}

// ArticleExtractor pulls readable text out of a page.
type ArticleExtractor interface {
	Extract(ctx context.Context, pageURL string) (*Article, error)
}

// Service enriches cards in place.
type Service struct {
	store     *store.Store
	fetcher   MetadataFetcher
	extractor ArticleExtractor
	logger    logging.Logger
}

func NewService(s *store.Store, fetcher MetadataFetcher, extractor ArticleExtractor, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Service{store: s, fetcher: fetcher, extractor: extractor, logger: logger}
}

// EnrichCard fetches preview metadata and article text for one card and
// applies whatever succeeded. Partial results are fine; a card with
// metadata but no article is still enriched.
func (s *Service) EnrichCard(ctx context.Context, id string) error {
	card, err := s.store.Get(ctx, models.EntityCard, id)
	if err != nil {
		return err
	}
	pageURL, _ := card.Fields[models.FieldURL].(string)
	if pageURL == "" {
		return fmt.Errorf("card %s has no url to enrich", id)
	}

	changes := models.Fields{}
	if d := domainOf(pageURL); d != "" {
		changes[models.FieldDomain] = d
	}

	var errs []error
	if s.fetcher != nil {
		meta, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			s.logger.Warn(ctx, "metadata fetch failed", "card_id", id, "error", err)
			errs = append(errs, err)
		} else {
			applyMetadata(changes, card, meta)
		}
	}
	if s.extractor != nil {
		article, err := s.extractor.Extract(ctx, pageURL)
		if err != nil {
			s.logger.Warn(ctx, "article extraction failed", "card_id", id, "error", err)
			errs = append(errs, err)
		} else if article.Text != "" {
			changes[models.FieldArticleText] = article.Text
			changes[models.FieldWordCount] = article.WordCount
		}
	}

	if len(changes) > 0 {
		_, err = s.store.UpdateWithOptions(ctx, models.EntityCard, id, changes,
			store.UpdateOptions{SkipConflictCheck: true})
		if err != nil {
			return err
		}
	}
	if len(changes) == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// applyMetadata merges fetched metadata, never overwriting a title the
// user already set.
func applyMetadata(changes models.Fields, card *models.Entity, meta *Metadata) {
	if meta.Title != "" {
		if current, _ := card.Fields[models.FieldTitle].(string); current == "" {
			changes[models.FieldTitle] = meta.Title
		}
	}
	if meta.Description != "" {
		changes[models.FieldDescription] = meta.Description
	}
	if meta.ThumbnailURL != "" {
		changes[models.FieldThumbnailURL] = meta.ThumbnailURL
	}
}

func domainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
