package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"membership-crm/core/internal/ratelimit"
	rfidservice "membership-crm/core/internal/rfid/service"
	threatengine "membership-crm/core/internal/threat/engine"
	tokenservice "membership-crm/core/internal/token/service"
)

// Server is the HTTP surface over the identity-security core: token
// rotation and revocation, the RFID gate endpoint and the admin read
// accessors.
type Server struct {
	tokens  *tokenservice.Service
	gate    *rfidservice.Service
	engine  *threatengine.Engine
	limiter ratelimit.Store
	origins []string
}

// New assembles a Server over the core services.
func New(tokens *tokenservice.Service, gate *rfidservice.Service, engine *threatengine.Engine, limiter ratelimit.Store, corsOrigins []string) *Server {
	return &Server{
		tokens:  tokens,
		gate:    gate,
		engine:  engine,
		limiter: limiter,
		origins: corsOrigins,
	}
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(clientInfoMiddleware, metricsMiddleware)

	auth := r.PathPrefix("/v1/auth").Subrouter()
	auth.Use(rateLimitMiddleware(s.limiter, "auth"))
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	auth.HandleFunc("/logout-all", s.handleLogoutAll).Methods(http.MethodPost)

	gate := r.PathPrefix("/v1/rfid").Subrouter()
	gate.Use(rateLimitMiddleware(s.limiter, "gate"))
	gate.HandleFunc("/checkin", s.handleGateCheckin).Methods(http.MethodPost)

	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.Use(rateLimitMiddleware(s.limiter, "admin"))
	admin.HandleFunc("/threats", s.handleListThreats).Methods(http.MethodGet)
	admin.HandleFunc("/baseline", s.handleGetBaseline).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pair, err := s.tokens.Rotate(r.Context(), req.RefreshToken, sessionMeta(r))
	if err != nil {
		// ReuseDetected is deliberately indistinguishable here: the caller
		// holding a replayed token learns nothing beyond "denied".
		if errors.Is(err, tokenservice.ErrAuthentication) || errors.Is(err, tokenservice.ErrReuseDetected) {
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, tokenservice.ErrAuthentication) {
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}
	if err := s.tokens.RevokeAll(r.Context(), claims.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type gateRequest struct {
	CardUID string `json:"card_uid"`
	Token   string `json:"token"`
}

type gateResponse struct {
	InSpace      bool       `json:"in_space"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
}

func (s *Server) handleGateCheckin(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cred, err := s.gate.TogglePresence(r.Context(), req.CardUID, req.Token)
	if err != nil {
		if errors.Is(err, rfidservice.ErrAuthentication) {
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, gateResponse{
		InSpace:      cred.InSpace,
		CheckedInAt:  cred.CheckedInAt,
		CheckedOutAt: cred.CheckedOutAt,
	})
}

func (s *Server) handleListThreats(w http.ResponseWriter, r *http.Request) {
	threats, err := s.engine.ActiveThreats(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threats": threats})
}

func (s *Server) handleGetBaseline(w http.ResponseWriter, r *http.Request) {
	baseline, err := s.engine.CurrentBaseline(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if baseline == nil {
		writeError(w, http.StatusNotFound, "baseline not yet calculated")
		return
	}
	writeJSON(w, http.StatusOK, baseline)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func sessionMeta(r *http.Request) tokenservice.SessionMeta {
	return tokenservice.SessionMeta{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
