package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/session"
)

// SaveRequest is the body of POST /forms and PUT /forms/{id}. At most one
// of SessionID and Snapshot may be set.
type SaveRequest struct {
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Snapshot    *session.Snapshot `json:"snapshot,omitempty"`
}

func (req *SaveRequest) validate() string {
	if req.SessionID != "" && req.Snapshot != nil {
		return "session_id and snapshot are mutually exclusive"
	}
	if req.Snapshot != nil {
		if err := req.Snapshot.Validate(); err != nil {
			return err.Error()
		}
	}
	return ""
}

// DeleteRequest is the body of POST /forms/delete.
type DeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// DeleteResponse reports which forms existed and were deleted.
type DeleteResponse struct {
	Deleted []int64 `json:"deleted"`
}

// RebuildResponse summarizes a results table rebuild.
type RebuildResponse struct {
	Table   string `json:"table"`
	Dropped bool   `json:"dropped"`
}

// TypesResponse lists the registered field and action types.
type TypesResponse struct {
	Fields  any `json:"fields"`
	Actions any `json:"actions"`
}

func formID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) listTypes(w http.ResponseWriter, _ *http.Request) {
	reg := s.forms.Registry()
	writeJSON(w, http.StatusOK, TypesResponse{Fields: reg.FieldTypes(), Actions: reg.ActionTypes()})
}

func (s *Server) listForms(w http.ResponseWriter, r *http.Request) {
	forms, err := s.forms.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if forms == nil {
		forms = []*form.Form{}
	}
	writeJSON(w, http.StatusOK, forms)
}

func (s *Server) getForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	f, err := s.forms.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) createForm(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	if msg := req.validate(); msg != "" {
		badRequest(w, msg)
		return
	}

	f := form.New(req.Name)
	if req.Description != nil {
		f.Description = *req.Description
	}
	s.save(w, r, f, &req, http.StatusCreated)
}

func (s *Server) saveForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	var req SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		badRequest(w, msg)
		return
	}
	// An update without entries would drop every field.
	if req.SessionID == "" && req.Snapshot == nil {
		badRequest(w, "session_id or snapshot is required")
		return
	}

	f, err := s.forms.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name != "" {
		f.Name = req.Name
	}
	if req.Description != nil {
		f.Description = *req.Description
	}
	s.save(w, r, f, &req, http.StatusOK)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request, f *form.Form, req *SaveRequest, status int) {
	var (
		saved *form.Form
		err   error
	)
	if req.SessionID != "" {
		saved, err = s.forms.SaveWithSession(r.Context(), f, req.SessionID)
	} else {
		saved, err = s.forms.Save(r.Context(), f, req.Snapshot)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, saved)
}

func (s *Server) deleteForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	deleted, err := s.forms.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := DeleteResponse{Deleted: []int64{}}
	if deleted {
		resp.Deleted = append(resp.Deleted, id)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteForms(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	deleted, err := s.forms.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []int64{}
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}

func (s *Server) columns(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	cols, err := s.forms.Columns(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cols == nil {
		cols = []schema.ColumnSpec{}
	}
	writeJSON(w, http.StatusOK, cols)
}

func (s *Server) cachedHTML(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	f, err := s.forms.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(f.CachedHTML))
}

func (s *Server) rebuild(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	res, err := s.forms.Rebuild(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{Table: res.Table, Dropped: res.Dropped})
}

// EditSessionResponse is returned by POST /forms/{id}/session.
type EditSessionResponse struct {
	SessionID string            `json:"session_id"`
	Snapshot  *session.Snapshot `json:"snapshot"`
}

func (s *Server) editSession(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(r)
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	sid, snap, err := s.forms.EditSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditSessionResponse{SessionID: sid, Snapshot: snap})
}
