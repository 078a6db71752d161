package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/models"
	"github.com/TheVisher/pawkit-sync/internal/server/entities"
)

type pushRequest struct {
	ID                string        `json:"id" validate:"required"`
	Fields            models.Fields `json:"fields"`
	BaseVersion       int64         `json:"baseVersion" validate:"gte=0"`
	SkipConflictCheck bool          `json:"skipConflictCheck"`
}

type pushResponse struct {
	Version    int64     `json:"version"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type wireRecord struct {
	Type         models.EntityType `json:"type"`
	ID           string            `json:"id"`
	Fields       models.Fields     `json:"fields"`
	Version      int64             `json:"version"`
	Deleted      bool              `json:"deleted"`
	DeletedAt    *time.Time        `json:"deletedAt,omitempty"`
	ModifiedAt   time.Time         `json:"modifiedAt"`
	DeviceID     string            `json:"deviceId,omitempty"`
	DeviceActive bool              `json:"deviceActive,omitempty"`
}

type conflictResponse struct {
	Message string     `json:"message"`
	Record  wireRecord `json:"record"`
}

type pullResponse struct {
	Records    []wireRecord `json:"records"`
	ServerTime time.Time    `json:"serverTime"`
}

func toWire(rec *entities.Record) wireRecord {
	return wireRecord{
		Type:         rec.Type,
		ID:           rec.ID,
		Fields:       rec.Fields,
		Version:      rec.Version,
		Deleted:      rec.Deleted,
		DeletedAt:    rec.DeletedAt,
		ModifiedAt:   rec.ModifiedAt,
		DeviceID:     rec.DeviceID,
		DeviceActive: rec.DeviceActive,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, models.OpCreate, "")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, models.OpUpdate, mux.Vars(r)["id"])
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, models.OpDelete, mux.Vars(r)["id"])
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, op models.Operation, pathID string) {
	typ, err := models.ParseEntityType(mux.Vars(r)["type"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unknown entity type")
		return
	}

	var req pushRequest
	if !h.decode(w, r, &req) {
		return
	}
	if pathID != "" && req.ID != pathID {
		h.writeError(w, http.StatusBadRequest, "body id does not match path")
		return
	}

	rec, err := h.entities.Apply(r.Context(), userIDFrom(r.Context()), entities.Change{
		Op:                op,
		Type:              typ,
		ID:                req.ID,
		Fields:            req.Fields,
		BaseVersion:       req.BaseVersion,
		SkipConflictCheck: req.SkipConflictCheck,
		DeviceID:          r.Header.Get(common.DeviceIDHeaderName),
		DeviceActive:      r.Header.Get(common.DeviceActiveHeaderName) == "true",
	})
	if err != nil {
		h.applyError(w, r, err)
		return
	}

	status := http.StatusOK
	if op == models.OpCreate {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, pushResponse{Version: rec.Version, ModifiedAt: rec.ModifiedAt})
}

func (h *Handler) applyError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *entities.ConflictError
	switch {
	case errors.As(err, &ce):
		h.writeJSON(w, http.StatusConflict, conflictResponse{
			Message: "version conflict",
			Record:  toWire(ce.Record),
		})
	case errors.Is(err, common.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "entity not found")
	case errors.Is(err, common.ErrUnknownEntity), errors.Is(err, common.ErrValidation):
		h.writeError(w, http.StatusUnprocessableEntity, "invalid change")
	default:
		h.logger.Error(r.Context(), "failed to apply change", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) pull(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed since parameter")
			return
		}
		since = parsed
	}

	records, err := h.entities.ListSince(r.Context(), userIDFrom(r.Context()), since)
	if err != nil {
		h.logger.Error(r.Context(), "pull failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := pullResponse{ServerTime: time.Now().UTC(), Records: make([]wireRecord, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, toWire(rec))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
