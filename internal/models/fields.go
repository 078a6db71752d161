package models

import "time"

// Well-known field names. Entities are stored as JSON documents, but the
// store, the conflict policy and the enrichment service all need to agree
// on key spelling, so the names live here.
const (
	FieldWorkspaceID  = "workspaceId"
	FieldCollectionID = "collectionId"

	FieldTitle       = "title"
	FieldURL         = "url"
	FieldNotes       = "notes"
	FieldSlug        = "slug"
	FieldName        = "name"
	FieldColor       = "color"
	FieldStartsAt    = "startsAt"
	FieldEndsAt      = "endsAt"
	FieldDueAt       = "dueAt"
	FieldDone        = "done"
	FieldCitation    = "citation"
	FieldSourceURL   = "sourceUrl"

	// Attachment fields hold the provider-scoped key of an uploaded file.
	FieldAttachmentID   = "attachmentId"
	FieldAttachmentName = "attachmentName"

	// Enrichment fields are populated by background server-side jobs and
	// are server-authoritative in conflict resolution.
	FieldThumbnailURL = "thumbnailUrl"
	FieldDescription  = "description"
	FieldDomain       = "domain"
	FieldArticleText  = "articleText"
	FieldWordCount    = "wordCount"
)

// NewCard builds the field set for a bookmark card.
func NewCard(workspaceID, url, title string) Fields {
	return Fields{
		FieldWorkspaceID: workspaceID,
		FieldURL:         url,
		FieldTitle:       title,
	}
}

// NewCollection builds the field set for a collection.
func NewCollection(workspaceID, name, slug string) Fields {
	return Fields{
		FieldWorkspaceID: workspaceID,
		FieldName:        name,
		FieldSlug:        slug,
	}
}

// NewWorkspace builds the field set for a workspace.
func NewWorkspace(name string) Fields {
	return Fields{FieldName: name}
}

// NewCalendarEvent builds the field set for a calendar event.
func NewCalendarEvent(workspaceID, title string, startsAt, endsAt time.Time) Fields {
	return Fields{
		FieldWorkspaceID: workspaceID,
		FieldTitle:       title,
		FieldStartsAt:    startsAt.UTC().Format(time.RFC3339),
		FieldEndsAt:      endsAt.UTC().Format(time.RFC3339),
	}
}

// NewTodo builds the field set for a todo item.
func NewTodo(workspaceID, title string) Fields {
	return Fields{
		FieldWorkspaceID: workspaceID,
		FieldTitle:       title,
		FieldDone:        false,
	}
}

// NewReference builds the field set for a reference record.
func NewReference(workspaceID, sourceURL, citation string) Fields {
	return Fields{
		FieldWorkspaceID: workspaceID,
		FieldSourceURL:   sourceURL,
		FieldCitation:    citation,
	}
}
