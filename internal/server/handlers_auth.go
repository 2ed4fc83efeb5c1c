package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/auth"
	cr "github.com/Savvy-Save/Aetherium/internal/crypto"
	"github.com/Savvy-Save/Aetherium/internal/session"
	"github.com/Savvy-Save/Aetherium/internal/totp"
	"github.com/Savvy-Save/Aetherium/internal/vault"
)

type loginReq struct {
	Username   string `json:"username"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Records   int       `json:"records"`
	Note      string    `json:"note,omitempty"`
}

type signupReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type signupResp struct {
	ChallengeID string    `json:"challenge_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Note        string    `json:"note,omitempty"`
	TOTPSecret  string    `json:"totp_secret,omitempty"`
	TOTPUri     string    `json:"totp_uri,omitempty"`
}

type twoFAChallengeResp struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Note        string    `json:"note"`
}

type loginVerifyReq struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type forgotPasswordReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type forgotPasswordResp struct {
	Note string `json:"note"`
}

type resetPasswordReq struct {
	Token string `json:"token"`
	Next  string `json:"next"`
}

type resetPasswordResp struct {
	Note string `json:"note"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req signupReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	if req.Email == "" || !isValidEmail(req.Email) {
		http.Error(w, "valid email required", http.StatusBadRequest)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		http.Error(w, "weak password: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.users.FindByUsername(req.Username); err == nil {
		http.Error(w, "username already exists", http.StatusConflict)
		return
	}
	if _, err := s.users.FindByEmail(req.Email); err == nil {
		http.Error(w, "email already exists", http.StatusConflict)
		return
	}

	hash, err := auth.HashPassword(auth.DefaultArgon, req.Password)
	if err != nil {
		http.Error(w, "hash password failed", http.StatusInternalServerError)
		return
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		http.Error(w, "totp generation failed", http.StatusInternalServerError)
		return
	}

	user := &auth.User{
		Username:   req.Username,
		Email:      req.Email,
		PassHash:   hash,
		Roles:      []auth.Role{auth.RoleUser},
		TOTPSecret: secret,
	}
	if err := s.users.Add(user); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	// The credential salt is minted here, once, and survives for the life
	// of the account.
	if err := session.EnsureProfile(r.Context(), s.store, user.Username, user.Email); err != nil {
		http.Error(w, "profile creation failed", http.StatusInternalServerError)
		return
	}

	master := []byte(req.Password)
	req.Password = ""

	challengeID, err := randomToken(16)
	if err != nil {
		cr.Zero(master)
		http.Error(w, "challenge generation failed", http.StatusInternalServerError)
		return
	}
	expires := time.Now().Add(10 * time.Minute)

	s.mu.Lock()
	for id, ch := range s.challs {
		if ch.Username == user.Username {
			cr.Zero(ch.Master)
			delete(s.challs, id)
		}
	}
	s.challs[challengeID] = &twoFAChallenge{
		Username: user.Username,
		Roles:    user.Roles,
		Master:   master,
		Expires:  expires,
	}
	s.mu.Unlock()

	provisionURI := totp.ProvisionURI(req.Username, s.cfg.TOTPIssuer, secret)
	writeJSON(w, signupResp{
		ChallengeID: challengeID,
		ExpiresAt:   expires,
		Note:        "Scan the QR code and confirm with a 6-digit authenticator code to finish.",
		TOTPUri:     provisionURI,
		TOTPSecret:  secret,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.gate.allow(limitLoginIP, clientIP(r)) {
		tooMany(w, 60)
		return
	}

	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}
	if !s.gate.allow(limitLoginID, strings.ToLower(identifier)) {
		tooMany(w, 60)
		return
	}

	principal, err := s.provider.Authenticate(r.Context(), identifier, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	user, err := s.users.FindByUsername(principal.Username)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	master := []byte(req.Password)
	req.Password = ""

	if strings.TrimSpace(user.TOTPSecret) == "" {
		cr.Zero(master)
		http.Error(w, "user is not enrolled for TOTP; contact support", http.StatusConflict)
		return
	}

	challengeID, err := randomToken(16)
	if err != nil {
		cr.Zero(master)
		http.Error(w, "challenge generation failed", http.StatusInternalServerError)
		return
	}
	expires := time.Now().Add(3 * time.Minute)

	s.mu.Lock()
	for id, ch := range s.challs {
		if ch.Username == user.Username {
			cr.Zero(ch.Master)
			delete(s.challs, id)
		}
	}
	s.challs[challengeID] = &twoFAChallenge{
		Username: user.Username,
		Roles:    user.Roles,
		Master:   master,
		Expires:  expires,
	}
	s.mu.Unlock()

	writeJSON(w, twoFAChallengeResp{
		ChallengeID: challengeID,
		ExpiresAt:   expires,
		Note:        "Submit the 6-digit code from your authenticator app.",
	})
}

func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.gate.allow(limitTotpIP, clientIP(r)) {
		tooMany(w, 60)
		return
	}

	var req loginVerifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	challengeID := strings.TrimSpace(req.ChallengeID)
	code := strings.TrimSpace(req.Code)
	if challengeID == "" || code == "" {
		http.Error(w, "challenge id and code required", http.StatusBadRequest)
		return
	}
	if !s.gate.allow(limitTotpChallenge, challengeID) {
		tooMany(w, 60)
		return
	}

	var challenge *twoFAChallenge
	s.mu.Lock()
	if ch, ok := s.challs[challengeID]; ok {
		if time.Now().After(ch.Expires) {
			cr.Zero(ch.Master)
			delete(s.challs, challengeID)
		} else {
			challenge = ch
		}
	}
	s.mu.Unlock()

	if challenge == nil {
		http.Error(w, "invalid or expired challenge", http.StatusUnauthorized)
		return
	}

	user, err := s.users.FindByUsername(challenge.Username)
	if err != nil {
		s.clearChallenge(challengeID)
		http.Error(w, "invalid challenge", http.StatusUnauthorized)
		return
	}

	if !totp.Verify(code, user.TOTPSecret, time.Now().UTC()) {
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}

	resp, err := s.completeLogin(r.Context(), challenge.Username, challenge.Master, challenge.Roles)
	if err != nil {
		s.clearChallenge(challengeID)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.clearChallenge(challengeID)
	writeJSON(w, resp)
}

func (s *Server) clearChallenge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.challs[id]; ok {
		cr.Zero(ch.Master)
		delete(s.challs, id)
	}
}

// completeLogin derives the user's session key, loads and decrypts the
// record set, and issues the API token. master is consumed: Establish
// zeroes the copy it is handed, and the challenge owner zeroes the
// original.
func (s *Server) completeLogin(ctx context.Context, username string, master []byte, roles []auth.Role) (loginResp, error) {
	keys := session.NewManager(s.store, s.cfg.Session, s.logger)
	records := vault.NewService(s.store, keys, s.auditor, s.logger)

	masterCopy := append([]byte(nil), master...)
	if err := keys.Establish(ctx, username, masterCopy); err != nil {
		return loginResp{}, fmt.Errorf("establish session: %w", err)
	}

	recs, err := records.FetchAndDecryptAll(ctx)
	if err != nil {
		keys.Clear()
		return loginResp{}, fmt.Errorf("load records: %w", err)
	}

	tok, exp, err := s.signer.IssueToken(username, roles)
	if err != nil {
		keys.Clear()
		return loginResp{}, fmt.Errorf("token issue failed: %w", err)
	}

	s.mu.Lock()
	if old := s.sessions[username]; old != nil {
		old.keys.Clear()
	}
	s.sessions[username] = &userSession{keys: keys, records: records}
	s.mu.Unlock()

	s.logger.Info("login complete", zap.String("user", username), zap.Int("records", len(recs)))
	return loginResp{Token: tok, ExpiresAt: exp, Records: len(recs)}, nil
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.gate.allow(limitForgotIP, clientIP(r)) {
		tooMany(w, 300)
		return
	}

	var req forgotPasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	username := strings.TrimSpace(req.Username)
	if email == "" && username == "" {
		http.Error(w, "email or username required", http.StatusBadRequest)
		return
	}
	if !s.gate.allow(limitForgotID, email+"|"+username) {
		tooMany(w, 300)
		return
	}

	resp := forgotPasswordResp{
		Note: "If the account exists, you'll receive a reset link shortly.",
	}

	var user *auth.User
	var err error
	if email != "" {
		user, err = s.users.FindByEmail(email)
	} else {
		user, err = s.users.FindByUsername(username)
	}
	if err != nil || user == nil || user.Email == "" {
		writeJSON(w, resp)
		return
	}

	token, err := randomToken(24)
	if err != nil {
		http.Error(w, "token generation failed", http.StatusInternalServerError)
		return
	}
	exp := time.Now().Add(15 * time.Minute)

	s.mu.Lock()
	for t, existing := range s.resets {
		if existing.Username == user.Username {
			delete(s.resets, t)
		}
	}
	s.resets[token] = resetToken{Username: user.Username, Email: user.Email, Expires: exp}
	s.mu.Unlock()

	if s.mail.Enabled() {
		if err := s.mail.SendResetPassword(user.Email, token, exp); err != nil {
			s.logger.Warn("reset email error", zap.Error(err))
		}
	} else {
		s.logger.Info("password reset token issued",
			zap.String("email", user.Email), zap.String("token", token))
	}

	writeJSON(w, resp)
}

// handleResetPassword replaces the login credential only. Stored ciphertext
// is keyed off the old password, so records written before the reset stay
// sealed until a migration re-encrypts them; the bulk fetch surfaces them
// as failed entries rather than blocking login.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.gate.allow(limitResetIP, clientIP(r)) {
		tooMany(w, 300)
		return
	}

	var req resetPasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	token := strings.TrimSpace(req.Token)
	next := strings.TrimSpace(req.Next)
	if token == "" || next == "" {
		http.Error(w, "token and next password required", http.StatusBadRequest)
		return
	}
	if !s.gate.allow(limitResetToken, token) {
		tooMany(w, 300)
		return
	}
	if err := validatePassword(next); err != nil {
		http.Error(w, "weak password: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	info, ok := s.resets[token]
	if ok && time.Now().After(info.Expires) {
		delete(s.resets, token)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	user, err := s.users.FindByUsername(info.Username)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	hash, err := auth.HashPassword(auth.DefaultArgon, next)
	if err != nil {
		http.Error(w, "hash password failed", http.StatusInternalServerError)
		return
	}

	if err := s.users.UpdatePassword(user.Username, hash); err != nil {
		http.Error(w, "update password failed", http.StatusInternalServerError)
		return
	}
	// Using the token proves control of the address it was sent to.
	if err := s.users.MarkEmailVerified(user.Username); err != nil {
		s.logger.Warn("mark email verified", zap.Error(err))
	}

	s.mu.Lock()
	delete(s.resets, token)
	if sess := s.sessions[user.Username]; sess != nil {
		sess.keys.Clear()
		delete(s.sessions, user.Username)
	}
	s.mu.Unlock()

	writeJSON(w, resetPasswordResp{
		Note: "Password updated. Sign in with your new password and authenticator code.",
	})
}
