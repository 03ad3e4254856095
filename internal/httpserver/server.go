// internal/httpserver/server.go
//
// HTTP server wiring for the shared-board Wordle backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/debug/words".
//   - Room endpoints (optional auth): /rooms, /rooms/{id}/..., WebSocket upgrade.
//   - Daily endpoints (optional auth): /rooms/daily, /daily/leaderboard.
//   - Auth + profile endpoints: /auth/*, /stats/me.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Every request resolves to an actor: the JWT username when logged in,
//     otherwise a guest ID kept in a signed anonymous cookie.

package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/websocket"

	"github.com/robalobadob/wordle-live/internal/config"
	"github.com/robalobadob/wordle-live/internal/hub"
	"github.com/robalobadob/wordle-live/internal/room"
	"github.com/robalobadob/wordle-live/internal/store"
	"github.com/robalobadob/wordle-live/internal/words"
)

// Deps are the collaborators a Server routes to.
type Deps struct {
	Config *config.Config
	Rooms  *room.Manager
	Hub    *hub.Hub
	Store  store.Store
	Words  *words.Lists
	Now    func() time.Time
}

// Server bundles router and dependencies.
type Server struct {
	r        *chi.Mux
	cfg      *config.Config
	rooms    *room.Manager
	hub      *hub.Hub
	store    store.Store
	words    *words.Lists
	now      func() time.Time
	cookies  *securecookie.SecureCookie
	upgrader websocket.Upgrader
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     d.Config,
		rooms:   d.Rooms,
		hub:     d.Hub,
		store:   d.Store,
		words:   d.Words,
		now:     now,
		cookies: securecookie.New([]byte(d.Config.CookieKey), nil),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(s.cors)          // credentials-friendly CORS
	s.r.Use(s.withOptionalAuth())

	// WebSocket upgrades are long-lived; keep them out of the timeout group.
	s.r.Get("/rooms/{id}/ws", s.handleWS)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"wordle-live","endpoints":["/health","POST /rooms","/rooms/daily","/rooms/{id}","/rooms/{id}/ws","/daily/leaderboard","/auth/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Get("/debug/words", func(w http.ResponseWriter, r *http.Request) {
			a, g := s.words.Stats()
			_ = json.NewEncoder(w).Encode(map[string]int{"length": s.words.Length(), "answers": a, "allowed": g})
		})

		s.mountDaily(r)
		s.mountRooms(r)
		s.mountAuthRoutes(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s
}

// Handler exposes the router (tests, http.Server).
func (s *Server) Handler() http.Handler { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin accepts same-host upgrades, the configured client origin, and
// non-browser clients that send no Origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == s.cfg.ClientOrigin {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// writeError answers {"error": msg} with status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
