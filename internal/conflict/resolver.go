// Package conflict decides what happens when the same entity was mutated
// on this device and on the server concurrently. Resolution is
// deterministic: every device that sees the same pair of records reaches
// the same result.
package conflict

import (
	"context"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

// Outcome names the winning side of a resolved conflict.
type Outcome string

const (
	OutcomeLocal  Outcome = "local"
	OutcomeServer Outcome = "server"
	OutcomeMerged Outcome = "merged"
)

// Input is one conflict: the local unsynced row, the server's current
// record and the device metadata of both writers.
type Input struct {
	Local        *models.Entity
	LocalDevice  models.DeviceMetadata
	Server       *models.Entity
	ServerDevice models.DeviceMetadata

	// SkipConflictCheck marks the local change as additive enrichment:
	// it merges over the server record without competing with it.
	SkipConflictCheck bool
}

// Resolution is the decided end state. Record is what the local replica
// stores; Push is the payload to re-queue, nil when the server side won
// outright and nothing needs pushing.
type Resolution struct {
	Outcome Outcome
	Record  *models.Entity
	Push    models.Fields
}

// Policy lists the field-level rules for one entity type.
type Policy struct {
	// ServerAuthoritative fields always take the server's value, whoever
	// wins. Background enrichment lands here so a stale client edit never
	// wipes it.
	ServerAuthoritative []string
}

// DefaultPolicies covers the built-in entity types. Cards carry
// server-side enrichment; the other types resolve on record level only.
func DefaultPolicies() map[models.EntityType]Policy {
	return map[models.EntityType]Policy{
		models.EntityCard: {
			ServerAuthoritative: []string{
				models.FieldThumbnailURL,
				models.FieldDescription,
				models.FieldDomain,
				models.FieldArticleText,
				models.FieldWordCount,
			},
		},
	}
}

// Resolver applies the policy table to conflicts.
type Resolver struct {
	policies map[models.EntityType]Policy
	logger   logging.Logger
}

func NewResolver(logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Resolver{policies: DefaultPolicies(), logger: logger}
}

// Resolve decides a conflict. It returns common.ErrAmbiguousMerge when no
// deterministic winner exists; the caller keeps the local change queued
// and records the stalemate.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	local, server := in.Local, in.Server

	if in.SkipConflictCheck {
		return r.resolveAdditive(ctx, in), nil
	}

	winner, ok := pickWinner(in)
	if !ok {
		r.logger.Warn(ctx, "conflict has no deterministic winner",
			"entity_type", local.Type, "entity_id", local.ID,
			"local_version", local.Version, "server_version", server.Version)
		return nil, common.ErrAmbiguousMerge
	}

	version := maxVersion(local.Version, server.Version) + 1

	if winner == OutcomeServer {
		rec := server.Clone()
		rec.Synced = true
		rec.ServerVersion = server.Version
		r.logger.Info(ctx, "conflict resolved",
			"entity_type", local.Type, "entity_id", local.ID, "winner", OutcomeServer)
		return &Resolution{Outcome: OutcomeServer, Record: rec}, nil
	}

	// local wins on record level, server keeps its authoritative fields
	rec := local.Clone()
	rec.Fields = local.Fields.Clone()
	for _, name := range r.policies[local.Type].ServerAuthoritative {
		if v, ok := server.Fields[name]; ok {
			rec.Fields[name] = v
		}
	}
	rec.Version = version
	rec.ServerVersion = server.Version
	rec.Deleted = local.Deleted
	rec.DeletedAt = local.DeletedAt
	rec.Synced = false

	r.logger.Info(ctx, "conflict resolved",
		"entity_type", local.Type, "entity_id", local.ID, "winner", OutcomeLocal)
	return &Resolution{Outcome: OutcomeLocal, Record: rec, Push: rec.Fields}, nil
}

// resolveAdditive overlays the local enrichment change on the server
// record. The server's record-level state wins; the local fields ride on
// top.
func (r *Resolver) resolveAdditive(ctx context.Context, in Input) *Resolution {
	rec := in.Server.Clone()
	rec.Fields = in.Server.Fields.Clone().Merge(in.Local.Fields)
	rec.Version = maxVersion(in.Local.Version, in.Server.Version) + 1
	rec.ServerVersion = in.Server.Version
	rec.Synced = false

	r.logger.Info(ctx, "conflict resolved",
		"entity_type", rec.Type, "entity_id", rec.ID, "winner", OutcomeMerged)
	return &Resolution{Outcome: OutcomeMerged, Record: rec, Push: rec.Fields}
}

// pickWinner applies the tie-break ladder: device activity first, then
// wall-clock recency, then the lexicographically greater device id.
func pickWinner(in Input) (Outcome, bool) {
	localActive := in.LocalDevice.Active
	serverActive := in.ServerDevice.Active
	switch {
	case localActive && !serverActive:
		return OutcomeLocal, true
	case serverActive && !localActive:
		return OutcomeServer, true
	}

	localAt := in.Local.LastModified
	serverAt := in.Server.LastModified
	switch {
	case localAt.After(serverAt):
		return OutcomeLocal, true
	case serverAt.After(localAt):
		return OutcomeServer, true
	}

	switch {
	case in.LocalDevice.DeviceID > in.ServerDevice.DeviceID:
		return OutcomeLocal, true
	case in.ServerDevice.DeviceID > in.LocalDevice.DeviceID:
		return OutcomeServer, true
	}
	return "", false
}

func maxVersion(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
