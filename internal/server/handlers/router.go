// Package handlers exposes the sync server's HTTP surface.
package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/server/entities"
	"github.com/TheVisher/pawkit-sync/internal/server/users"
)

type Handler struct {
	users    *users.Service
	entities *entities.Service
	validate *validator.Validate
	logger   logging.Logger
}

func New(usersSvc *users.Service, entitiesSvc *entities.Service, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Handler{
		users:    usersSvc,
		entities: entitiesSvc,
		validate: validator.New(),
		logger:   logger,
	}
}

// Router assembles the route table. Everything under /entities requires a
// bearer token.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	api := r.PathPrefix("/entities").Subrouter()
	api.Use(h.authMiddleware)
	api.HandleFunc("", h.pull).Methods(http.MethodGet)
	api.HandleFunc("/{type}", h.create).Methods(http.MethodPost)
	api.HandleFunc("/{type}/{id}", h.update).Methods(http.MethodPatch)
	api.HandleFunc("/{type}/{id}", h.delete).Methods(http.MethodDelete)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
