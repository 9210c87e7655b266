package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/formforge/internal/session"
)

type section int

const (
	fieldsSection section = iota
	actionsSection
)

// EntryRequest is the body of the session entry endpoints.
type EntryRequest struct {
	Props map[string]any `json:"props"`
}

// EntryResponse returns the key of an added entry.
type EntryResponse struct {
	Key string `json:"key"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.forms.Sessions().Read(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) putSession(w http.ResponseWriter, r *http.Request) {
	var snap session.Snapshot
	if err := decodeJSON(r, &snap); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if err := snap.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.forms.Sessions().Write(r.Context(), chi.URLParam(r, "sid"), &snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := s.forms.Sessions().Clear(r.Context(), chi.URLParam(r, "sid")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// editEntries applies fn to the session through Store.Update, so concurrent
// edits to one session are not lost. An unknown session starts empty.
func (s *Server) editEntries(r *http.Request, fn func(*session.Snapshot)) error {
	return s.forms.Sessions().Update(r.Context(), chi.URLParam(r, "sid"), func(snap *session.Snapshot) error {
		fn(snap)
		return nil
	})
}

func (s *Server) addEntry(sec section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EntryRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}

		var key string
		err := s.editEntries(r, func(snap *session.Snapshot) {
			if sec == fieldsSection {
				key = snap.AddField(s.minter, req.Props)
			} else {
				key = snap.AddAction(s.minter, req.Props)
			}
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, EntryResponse{Key: key})
	}
}

func (s *Server) putEntry(sec section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EntryRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}

		key := chi.URLParam(r, "key")
		err := s.editEntries(r, func(snap *session.Snapshot) {
			if sec == fieldsSection {
				snap.PutField(key, req.Props)
			} else {
				snap.PutAction(key, req.Props)
			}
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) deleteEntry(sec section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		err := s.editEntries(r, func(snap *session.Snapshot) {
			if sec == fieldsSection {
				snap.MarkFieldDeleted(key)
			} else {
				snap.MarkActionDeleted(key)
			}
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
