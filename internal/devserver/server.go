// Package devserver is an in-memory implementation of the dashboard API
// contract, used for local development and end-to-end tests. It issues real
// HS256 tokens, rotates refresh tokens and returns the documented envelopes.
package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockkanban/client-go/internal/httputil"
	"github.com/stockkanban/client-go/pkg/token"
)

// Config holds devserver settings. Zero values select development defaults.
type Config struct {
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AuthRateLimit requests per AuthRateWindow on the auth routes.
	AuthRateLimit  int
	AuthRateWindow time.Duration

	Logger *slog.Logger
}

type user struct {
	id           string
	username     string
	email        string
	passwordHash []byte
	role         string
	disabled     bool
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

// Server holds all state in memory.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate

	mu            sync.Mutex
	users         map[string]*user // keyed by lowercased email
	refreshTokens map[string]refreshRecord
	watchlists    map[string][]*watchlist // keyed by user id
	cards         map[string][]*card      // keyed by user id
	nextID        int64
}

// New creates an empty devserver.
func New(cfg Config) *Server {
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = []byte("dev-secret-change-me")
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.AuthRateLimit == 0 {
		cfg.AuthRateLimit = 20
	}
	if cfg.AuthRateWindow == 0 {
		cfg.AuthRateWindow = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		cfg:           cfg,
		logger:        cfg.Logger,
		validate:      validator.New(),
		users:         make(map[string]*user),
		refreshTokens: make(map[string]refreshRecord),
		watchlists:    make(map[string][]*watchlist),
		cards:         make(map[string][]*card),
	}
}

// SeedUser registers a user directly, bypassing the HTTP surface. Used by
// tests and dev bootstrap.
func (s *Server) SeedUser(username, email, password, role string, disabled bool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = &user{
		id:           uuid.NewString(),
		username:     username,
		email:        email,
		passwordHash: hash,
		role:         role,
		disabled:     disabled,
	}
	return nil
}

// Handler returns the chi router serving the full contract.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			s.cfg.AuthRateLimit,
			s.cfg.AuthRateWindow,
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				s.logger.Warn("rate limit exceeded", "ip", r.RemoteAddr, "path", r.URL.Path)
				httputil.Error(w, http.StatusTooManyRequests,
					"RATE_LIMITED", "too many requests, please try again later", "")
			}),
		))
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/auth/me", s.handleMe)

		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", s.handleListWatchlists)
			r.Post("/", s.handleCreateWatchlist)
			r.Get("/{watchlistID}", s.handleGetWatchlist)
			r.Delete("/{watchlistID}", s.handleDeleteWatchlist)
			r.Post("/{watchlistID}/stocks", s.handleAddStock)
			r.Delete("/stocks/{stockCode}", s.handleRemoveStock)
		})

		r.Route("/kanban", func(r chi.Router) {
			r.Get("/cards", s.handleCards)
			r.Get("/cards/{cardID}", s.handleGetCard)
			r.Patch("/cards/{cardID}", s.handleUpdateCard)
			r.Get("/stats", s.handleStats)
		})

		r.Route("/chart", func(r chi.Router) {
			r.Get("/stocks/{stockCode}", s.handleChart)
			r.Get("/stocks/{stockCode}/range", s.handleChartRange)
		})
	})

	return r
}

type ctxKey int

const userKey ctxKey = 0

// requireAuth validates the bearer token and stashes the user on the context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization", "")
			return
		}

		claims, err := s.parseToken(parts[1])
		if err != nil {
			httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", "")
			return
		}

		s.mu.Lock()
		u := s.users[strings.ToLower(claims.Email)]
		s.mu.Unlock()
		if u == nil {
			httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown user", "")
			return
		}
		if u.disabled {
			httputil.Error(w, http.StatusForbidden,
				"ACCOUNT_DISABLED", "this account has been disabled", "contact an administrator")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func (s *Server) parseToken(raw string) (*token.Claims, error) {
	var claims token.Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.cfg.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

func (s *Server) signToken(u *user) (string, error) {
	now := time.Now()
	claims := token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
		Username: u.username,
		Email:    u.email,
		Role:     u.role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
}

// issueTokens signs an access token and rotates in a fresh refresh token.
// Caller must hold s.mu.
func (s *Server) issueTokensLocked(u *user) (access, refresh string, err error) {
	access, err = s.signToken(u)
	if err != nil {
		return "", "", err
	}
	refresh = uuid.NewString()
	s.refreshTokens[refresh] = refreshRecord{
		userID:    u.id,
		expiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
	}
	return access, refresh, nil
}

func userPayload(u *user) map[string]string {
	return map[string]string{
		"id":       u.id,
		"username": u.username,
		"email":    u.email,
		"role":     u.role,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[strings.ToLower(req.Email)]
	if u == nil || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		httputil.Error(w, http.StatusUnauthorized,
			"INVALID_CREDENTIALS", "invalid email or password", "")
		return
	}
	if u.disabled {
		httputil.Error(w, http.StatusForbidden,
			"ACCOUNT_DISABLED", "this account has been disabled", "contact an administrator")
		return
	}

	access, refresh, err := s.issueTokensLocked(u)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL", "failed to issue tokens", "")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"user":         userPayload(u),
		"token":        access,
		"refreshToken": refresh,
	})
}

type registerRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=30"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", "")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL", "failed to hash password", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(req.Email)
	if s.users[key] != nil {
		httputil.Error(w, http.StatusConflict,
			"DUPLICATE_ACCOUNT", "an account with this email already exists", "")
		return
	}

	u := &user{
		id:           uuid.NewString(),
		username:     req.Username,
		email:        req.Email,
		passwordHash: hash,
		role:         "USER",
	}
	s.users[key] = u

	access, refresh, err := s.issueTokensLocked(u)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL", "failed to issue tokens", "")
		return
	}

	httputil.JSON(w, http.StatusCreated, map[string]any{
		"user":         userPayload(u),
		"token":        access,
		"refreshToken": refresh,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "refreshToken is required", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refreshTokens[req.RefreshToken]
	if !ok || time.Now().After(rec.expiresAt) {
		delete(s.refreshTokens, req.RefreshToken)
		httputil.Error(w, http.StatusUnauthorized,
			"INVALID_REFRESH_TOKEN", "refresh token is invalid or expired", "")
		return
	}

	var u *user
	for _, candidate := range s.users {
		if candidate.id == rec.userID {
			u = candidate
			break
		}
	}
	if u == nil || u.disabled {
		delete(s.refreshTokens, req.RefreshToken)
		httputil.Error(w, http.StatusUnauthorized,
			"INVALID_REFRESH_TOKEN", "refresh token is no longer valid", "")
		return
	}

	// One-shot rotation: the presented token is consumed either way.
	delete(s.refreshTokens, req.RefreshToken)

	access, refresh, err := s.issueTokensLocked(u)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL", "failed to issue tokens", "")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"user":         userPayload(u),
		"token":        access,
		"refreshToken": refresh,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		s.mu.Lock()
		delete(s.refreshTokens, req.RefreshToken)
		s.mu.Unlock()
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	httputil.JSON(w, http.StatusOK, userPayload(u))
}
