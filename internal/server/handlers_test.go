package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/audit"
	"github.com/Savvy-Save/Aetherium/internal/auth"
	"github.com/Savvy-Save/Aetherium/internal/storage"
	"github.com/Savvy-Save/Aetherium/internal/totp"
)

const (
	testPassword = "Master-Pass-123!"
	testEmail    = "alice@example.com"
)

func newTestServer(t *testing.T) *httptest.Server {
	ts, _ := newTestServerFull(t)
	return ts
}

func newTestServerFull(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	srv, err := NewWithStores(Config{}, auth.NewMemoryUserStore(), storage.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, srv
}

func doJSON(t *testing.T, method, url, token string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// signupAndLogin walks the full enrollment flow and returns a bearer token.
func signupAndLogin(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()

	var su signupResp
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/signup", "", signupReq{
		Username: username,
		Password: testPassword,
		Email:    fmt.Sprintf("%s@example.com", username),
	}, &su)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, su.ChallengeID)
	require.NotEmpty(t, su.TOTPSecret)

	code, err := totp.Code(su.TOTPSecret, time.Now().UTC())
	require.NoError(t, err)

	var lr loginResp
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/login/verify", "", loginVerifyReq{
		ChallengeID: su.ChallengeID,
		Code:        code,
	}, &lr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, lr.Token)
	return lr.Token
}

func TestSignupVerifyAndRecordRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "alice")

	var created map[string]string
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/records", token, addRecordReq{
		Title:      "email",
		Username:   "alice",
		Password:   "hunter2!",
		Pin:        "4321",
		Protection: "sessionKey",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created["id"])

	var list []recordView
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records", token, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Password)
	assert.Equal(t, "hunter2!", *list[0].Password)
	assert.True(t, list[0].HasPin)
	assert.False(t, list[0].DecryptionError)
}

func TestLoginWithPasswordThenVerify(t *testing.T) {
	ts := newTestServer(t)
	_ = signupAndLogin(t, ts, "bob")

	var ch twoFAChallengeResp
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/login", "", loginReq{
		Identifier: "bob",
		Password:   testPassword,
	}, &ch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, ch.ChallengeID)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/login/verify", "", loginVerifyReq{
		ChallengeID: ch.ChallengeID,
		Code:        "000000",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "wrong code must not complete login")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	_ = signupAndLogin(t, ts, "carol")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/login", "", loginReq{
		Identifier: "carol",
		Password:   "Wrong-Pass-999!",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSecondaryUnlockOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "dave")

	var created map[string]string
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/records", token, addRecordReq{
		Title:             "bank",
		Password:          "vault-pw",
		Pin:               "9999",
		Protection:        "secondarySecret",
		SecondaryPassword: "Sesame1!",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"]

	// Listed record carries no plaintext until unlocked.
	var list []recordView
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records", token, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Password)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/records/"+id+"/unlock", token,
		unlockRecordReq{SecondaryPassword: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var secrets map[string]string
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/records/"+id+"/unlock", token,
		unlockRecordReq{SecondaryPassword: "Sesame1!"}, &secrets)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "vault-pw", secrets["password"])
	assert.Equal(t, "9999", secrets["pin"])
}

func TestEditAndDeleteRecord(t *testing.T) {
	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "erin")

	var created map[string]string
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/records", token, addRecordReq{
		Title:      "site",
		Password:   "old-pw",
		Protection: "sessionKey",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"]

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/records/"+id, token, editRecordReq{
		Title:    "site",
		Password: "new-pw",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec recordView
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records/"+id, token, nil, &rec)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, rec.Password)
	assert.Equal(t, "new-pw", *rec.Password)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/records/"+id, token, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records/"+id, token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPinValidateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "frank")

	var created map[string]string
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/records", token, addRecordReq{
		Title:      "atm",
		Password:   "pw",
		Pin:        "2468",
		Protection: "sessionKey",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"]

	var out map[string]bool
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/records/"+id+"/pin/validate", token,
		validatePinReq{Pin: "2468"}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out["valid"])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/records/"+id+"/pin/validate", token,
		validatePinReq{Pin: "0000"}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out["valid"])
}

func TestLockEndsSession(t *testing.T) {
	ts := newTestServer(t)
	token := signupAndLogin(t, ts, "grace")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/lock", token, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records", token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "token survives but the vault is locked")
}

func TestRecordsRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/records", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestForgotAndResetPassword(t *testing.T) {
	ts, srv := newTestServerFull(t)
	_ = signupAndLogin(t, ts, "henry")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/password/forgot", "", forgotPasswordReq{
		Username: "henry",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The mailer is disabled in tests, so pull the token out of the
	// server's pending-reset table.
	srv.mu.Lock()
	var token string
	for t2, info := range srv.resets {
		if info.Username == "henry" {
			token = t2
		}
	}
	srv.mu.Unlock()
	require.NotEmpty(t, token)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/password/reset", "", resetPasswordReq{
		Token: "bogus",
		Next:  "Another-Pass-456!",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/password/reset", "", resetPasswordReq{
		Token: token,
		Next:  "Another-Pass-456!",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Old password no longer authenticates; the new one does.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/login", "", loginReq{
		Identifier: "henry",
		Password:   testPassword,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var ch twoFAChallengeResp
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/login", "", loginReq{
		Identifier: "henry",
		Password:   "Another-Pass-456!",
	}, &ch)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuditEndpointRequiresAdmin(t *testing.T) {
	srv, err := NewWithStores(Config{
		SeedUsers: []SeedUser{{
			Username: "root",
			Email:    "root@example.com",
			Password: testPassword,
			Roles:    []auth.Role{auth.RoleAdmin},
		}},
	}, auth.NewMemoryUserStore(), storage.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	token := signupAndLogin(t, ts, "ivy")
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/audit", token, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "non-admins must not read the audit log")

	var ch twoFAChallengeResp
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/login", "", loginReq{
		Identifier: "root",
		Password:   testPassword,
	}, &ch)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The seed flow generated the admin's TOTP secret; read it back to
	// finish the login.
	admin, err := srv.users.FindByUsername("root")
	require.NoError(t, err)
	code, err := totp.Code(admin.TOTPSecret, time.Now().UTC())
	require.NoError(t, err)

	var lr loginResp
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/login/verify", "", loginVerifyReq{
		ChallengeID: ch.ChallengeID,
		Code:        code,
	}, &lr)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []audit.Entry
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/audit", lr.Token, nil, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, entries, "completed logins leave fetch entries behind")
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/signup", "", signupReq{
		Username: "weak",
		Password: "short",
		Email:    testEmail,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
