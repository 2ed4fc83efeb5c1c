package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/audit"
	"github.com/Savvy-Save/Aetherium/internal/auth"
	"github.com/Savvy-Save/Aetherium/internal/session"
	"github.com/Savvy-Save/Aetherium/internal/storage"
	"github.com/Savvy-Save/Aetherium/internal/totp"
)

// Store is everything the server needs from persistence: the record
// collection plus the per-user credential profiles.
type Store interface {
	storage.RecordStore
	storage.ProfileStore
}

type Server struct {
	cfg Config

	mux      *http.ServeMux
	signer   *auth.JWTSigner
	users    auth.UserStore
	provider auth.Provider
	store    Store
	mail     mailer
	logger   *zap.Logger
	auditor  *audit.Log

	mu       sync.Mutex
	sessions map[string]*userSession
	resets   map[string]resetToken
	challs   map[string]*twoFAChallenge

	gate *rateGate
}

// New connects to Mongo and wires the full server. Use NewWithStores to run
// against in-memory stores instead.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	cfg.setDefaults()
	if cfg.MongoURI == "" {
		return nil, errors.New("server: MongoURI required")
	}
	if cfg.MongoDB == "" {
		return nil, errors.New("server: MongoDB required")
	}

	users, err := auth.NewMongoUserStore(ctx, cfg.MongoURI, cfg.MongoDB, cfg.UsersCollection)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	return NewWithStores(cfg, users, store, logger)
}

// NewWithStores wires the server onto caller-supplied stores.
func NewWithStores(cfg Config, users auth.UserStore, store Store, logger *zap.Logger) (*Server, error) {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	priv, _, err := auth.GenerateEd25519()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		signer:   auth.NewJWTSigner(priv, cfg.JWTIssuer, cfg.TokenTTL),
		users:    users,
		provider: auth.NewProvider(users),
		store:    store,
		logger:   logger,
		auditor:  audit.New(),
		sessions: map[string]*userSession{},
		resets:   map[string]resetToken{},
		challs:   map[string]*twoFAChallenge{},
		gate:     newRateGate(),
	}
	s.mail = newSMTPMailer(cfg.SMTP, logger)

	if err := s.ensureSeedUsers(context.Background()); err != nil {
		return nil, err
	}

	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	s.addDefaultHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	path := r.URL.Path
	if strings.HasPrefix(path, "/api/") {
		if s.isPublic(path) {
			s.mux.ServeHTTP(w, r)
			return
		}
		handler := auth.AuthRequired(s.signer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		}))
		handler.ServeHTTP(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s
}

func (s *Server) isPublic(path string) bool {
	switch path {
	case "/health", "/api/health", "/api/login", "/api/login/verify", "/api/signup", "/api/password/forgot", "/api/password/reset":
		return true
	default:
		return false
	}
}

func (s *Server) addDefaultHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
}

func (s *Server) ensureSeedUsers(ctx context.Context) error {
	for _, seed := range s.cfg.SeedUsers {
		if strings.TrimSpace(seed.Username) == "" || strings.TrimSpace(seed.Password) == "" {
			continue
		}
		if _, err := s.users.FindByUsername(seed.Username); err == nil {
			continue
		}
		hash, err := auth.HashPassword(auth.DefaultArgon, seed.Password)
		if err != nil {
			return err
		}
		secret, err := totp.GenerateSecret()
		if err != nil {
			return err
		}
		user := &auth.User{
			Username:   seed.Username,
			Email:      strings.TrimSpace(strings.ToLower(seed.Email)),
			PassHash:   hash,
			Roles:      seed.Roles,
			TOTPSecret: secret,
		}
		if err := s.users.Add(user); err != nil {
			return err
		}
		if err := session.EnsureProfile(ctx, s.store, seed.Username, user.Email); err != nil {
			return err
		}
		s.logger.Info("seeded user",
			zap.String("user", seed.Username),
			zap.Strings("roles", roleNames(seed.Roles)),
			zap.String("totp_secret", secret))
	}
	return nil
}
