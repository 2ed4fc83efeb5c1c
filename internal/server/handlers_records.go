package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Savvy-Save/Aetherium/internal/auth"
	"github.com/Savvy-Save/Aetherium/internal/crypto"
	"github.com/Savvy-Save/Aetherium/internal/session"
	"github.com/Savvy-Save/Aetherium/internal/vault"
)

type recordView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Username        string    `json:"username,omitempty"`
	Email           string    `json:"email,omitempty"`
	Password        *string   `json:"password"`
	Pin             *string   `json:"pin,omitempty"`
	ImageBlob       string    `json:"image_blob,omitempty"`
	Protection      string    `json:"protection"`
	HasPin          bool      `json:"has_pin"`
	DecryptionError bool      `json:"decryption_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type addRecordReq struct {
	Title             string `json:"title"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	Pin               string `json:"pin"`
	ImageBlob         string `json:"image_blob"`
	Protection        string `json:"protection"`
	SecondaryPassword string `json:"secondary_password"`
}

type editRecordReq struct {
	Title     string `json:"title"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Pin       string `json:"pin"`
	ImageBlob string `json:"image_blob"`
}

type unlockRecordReq struct {
	SecondaryPassword string `json:"secondary_password"`
}

type validatePinReq struct {
	Pin string `json:"pin"`
}

func viewOf(rec vault.SecretRecord, hasPin bool) recordView {
	return recordView{
		ID:              rec.ID,
		Title:           rec.Title,
		Username:        rec.Username,
		Email:           rec.Email,
		Password:        rec.SecretPassword,
		Pin:             rec.SecretPin,
		ImageBlob:       rec.ImageBlob,
		Protection:      string(rec.Protection),
		HasPin:          hasPin,
		DecryptionError: rec.DecryptionError,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	sess, err := s.withSession(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		recs, err := sess.records.FetchAndDecryptAll(r.Context())
		if err != nil {
			s.failSession(w, sess, err)
			return
		}
		out := make([]recordView, 0, len(recs))
		for _, rec := range recs {
			out = append(out, viewOf(rec, sess.records.HasPin(rec.ID)))
		}
		writeJSON(w, out)

	case http.MethodPost:
		var req addRecordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		id, err := sess.records.AddRecord(r.Context(), vault.NewRecord{
			Title:             req.Title,
			Username:          req.Username,
			Email:             req.Email,
			SecretPassword:    req.Password,
			SecretPin:         req.Pin,
			ImageBlob:         req.ImageBlob,
			Protection:        vault.Protection(req.Protection),
			SecondaryPassword: req.SecondaryPassword,
		})
		if err != nil {
			s.failSession(w, sess, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRecordByID serves /api/records/{id} plus the /unlock and
// /pin/validate sub-resources.
func (s *Server) handleRecordByID(w http.ResponseWriter, r *http.Request) {
	sess, err := s.withSession(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/records/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch sub {
	case "":
	case "unlock":
		s.handleRecordUnlock(w, r, sess, id)
		return
	case "pin/validate":
		s.handlePinValidate(w, r, sess, id)
		return
	default:
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, ok := sess.records.Cache().Get(id)
		if !ok {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		writeJSON(w, viewOf(rec, sess.records.HasPin(id)))

	case http.MethodPut:
		var req editRecordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		err := sess.records.EditRecord(r.Context(), id, vault.RecordEdit{
			Title:          req.Title,
			Username:       req.Username,
			Email:          req.Email,
			SecretPassword: req.Password,
			SecretPin:      req.Pin,
			ImageBlob:      req.ImageBlob,
		})
		if err != nil {
			s.failSession(w, sess, err)
			return
		}
		writeJSON(w, map[string]any{"updated": true})

	case http.MethodDelete:
		if err := sess.records.DeleteRecord(r.Context(), id); err != nil {
			s.failSession(w, sess, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRecordUnlock(w http.ResponseWriter, r *http.Request, sess *userSession, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.gate.allow(limitUnlockRecord, sess.keys.UserID()+"|"+id) {
		tooMany(w, 60)
		return
	}

	var req unlockRecordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.SecondaryPassword == "" {
		http.Error(w, "secondary password required", http.StatusBadRequest)
		return
	}

	rec, ok := sess.records.Cache().Get(id)
	if !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}

	secrets, err := vault.UnlockRecord(rec, req.SecondaryPassword)
	if errors.Is(err, crypto.ErrDecryptionFailed) {
		http.Error(w, "unlock failed", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"password": secrets.Password, "pin": secrets.Pin})
}

func (s *Server) handlePinValidate(w http.ResponseWriter, r *http.Request, sess *userSession, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req validatePinReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if _, ok := sess.records.Cache().Get(id); !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]bool{"valid": sess.records.ValidatePin(id, req.Pin)})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	sess := s.sessions[claims.Sub]
	s.mu.Unlock()

	unlocked := sess != nil && sess.keys.Active()
	resp := map[string]any{"user": claims.Sub, "unlocked": unlocked}
	if unlocked {
		resp["records"] = sess.records.Cache().Len()
	}
	writeJSON(w, resp)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	if sess := s.sessions[claims.Sub]; sess != nil {
		sess.keys.Clear()
	}
	delete(s.sessions, claims.Sub)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withSession(r *http.Request) (*userSession, error) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, errors.New("no auth context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[claims.Sub]
	if sess == nil || !sess.keys.Active() {
		return nil, errors.New("session locked; sign in again")
	}
	return sess, nil
}

// failSession maps core errors onto HTTP statuses. An expired session key
// reads as unauthorized so clients re-prompt for login instead of showing
// a generic failure.
func (s *Server) failSession(w http.ResponseWriter, sess *userSession, err error) {
	switch {
	case errors.Is(err, vault.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, vault.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrNoSessionKey):
		http.Error(w, "session locked; sign in again", http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
