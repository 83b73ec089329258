package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/listsync"
)

// createEntryRequest is the body of POST /entries.
type createEntryRequest struct {
	EntityID string `json:"entity_id"`
}

// entityResponse is the JSON view of a mirrored item sensor.
type entityResponse struct {
	EntityID        string            `json:"entity_id"`
	UniqueID        string            `json:"unique_id"`
	UID             string            `json:"uid"`
	WrappedEntityID string            `json:"wrapped_entity_id"`
	Name            string            `json:"name"`
	State           string            `json:"state"`
	Icon            string            `json:"icon"`
	Attributes      map[string]string `json:"attributes"`
}

func newEntityResponse(s entity.Sensor) entityResponse {
	return entityResponse{
		EntityID:        s.EntityID,
		UniqueID:        s.UniqueID,
		UID:             s.UID,
		WrappedEntityID: s.WrappedEntityID,
		Name:            s.Name,
		State:           s.NativeValue,
		Icon:            s.Icon,
		Attributes:      s.Attributes,
	}
}

// handleListEntries returns every config entry with its runtime state.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.manager.Entries(r.Context())
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	if entries == nil {
		entries = []configentry.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleCreateEntry configures a new watched list.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.EntityID = strings.TrimSpace(req.EntityID)
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "entity_id is required")
		return
	}

	entry, err := s.manager.Add(r.Context(), req.EntityID)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.logger.Info("config entry added",
		"entry_id", entry.ID,
		"entity_id", entry.Options.EntityID,
		"subject", r.Context().Value(ctxKeySubject),
	)
	writeJSON(w, http.StatusCreated, entry)
}

// handleGetEntry returns one config entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.manager.Entry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleDeleteEntry removes a config entry and every entity it created.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Remove(r.Context(), id); err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.logger.Info("config entry removed", "entry_id", id, "subject", r.Context().Value(ctxKeySubject))
	w.WriteHeader(http.StatusNoContent)
}

// handleListEntities returns the live sensors of a config entry. An entry
// that is not loaded has none.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.manager.Entry(r.Context(), id)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	sensors, err := s.manager.Sensors(id)
	if err != nil && !errors.Is(err, listsync.ErrNotLoaded) {
		s.writeManagerError(w, err)
		return
	}

	entities := make([]entityResponse, 0, len(sensors))
	for _, sensor := range sensors {
		entities = append(entities, newEntityResponse(sensor))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id": entry.ID,
		"state":    entry.State,
		"entities": entities,
		"count":    len(entities),
	})
}

// handleSyncEntry schedules an immediate pass.
func (s *Server) handleSyncEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.manager.Entry(r.Context(), id); err != nil {
		s.writeManagerError(w, err)
		return
	}
	if err := s.manager.Resync(id); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"entry_id": id,
		"status":   "scheduled",
	})
}
