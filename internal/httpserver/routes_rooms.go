// internal/httpserver/routes_rooms.go
//
// HTTP routes for shared rooms.
//
//   - POST /rooms                    → create a room (optional fixed answer)
//   - GET  /rooms/{id}               → current public state
//   - GET  /rooms/{id}/history       → applied intents, once the round ended
//   - GET  /rooms/{id}/qr            → PNG QR code of the room link
//   - POST /rooms/{id}/letter        → addLetter   {"letter":"A"}
//   - POST /rooms/{id}/backspace     → backspace
//   - POST /rooms/{id}/submit        → submitWord  {"colors":[...]} optional
//   - POST /rooms/{id}/new           → newRound
//   - GET  /rooms/{id}/ws            → WebSocket observer + intent channel
//
// The POST routes are a thin HTTP rendition of the WebSocket intents: they
// go through the same room, so every connected observer sees the result.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/protocol"
	"github.com/robalobadob/wordle-live/internal/room"
)

// intentTimeout bounds how long a WebSocket intent waits on its room.
const intentTimeout = 5 * time.Second

type createRoomReq struct {
	Answer string `json:"answer,omitempty"`
}

type createRoomRes struct {
	RoomID string `json:"roomId"`
	URL    string `json:"url"`
}

type letterReq struct {
	Letter string `json:"letter"`
}

type submitReq struct {
	Colors []game.Verdict `json:"colors,omitempty"`
}

func (s *Server) mountRooms(r chi.Router) {
	r.Post("/rooms", s.handleCreateRoom)
	r.Route("/rooms/{id}", func(r chi.Router) {
		r.Get("/", s.handleRoomState)
		r.Get("/history", s.handleRoomHistory)
		r.Get("/qr", s.handleRoomQR)
		r.Post("/letter", s.handleLetter)
		r.Post("/backspace", s.intentHandler(protocol.Backspace))
		r.Post("/submit", s.handleSubmit)
		r.Post("/new", s.intentHandler(protocol.NewRound))
	})
}

// handleCreateRoom starts a new room. A blank answer draws a random word.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	_ = json.NewDecoder(r.Body).Decode(&req) // empty body is fine

	answer := strings.ToUpper(strings.TrimSpace(req.Answer))
	if answer != "" && (len(answer) != s.words.Length() || !isLetters(answer)) {
		http.Error(w, `{"error":"invalid_answer"}`, http.StatusBadRequest)
		return
	}
	rm, err := s.rooms.Create(r.Context(), answer)
	if err != nil {
		log.Error().Err(err).Msg("create room")
		http.Error(w, `{"error":"create_failed"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createRoomRes{RoomID: rm.ID(), URL: s.roomURL(r, rm.ID())})
}

// room resolves {id}, answering 404 itself when the room is unknown.
func (s *Server) room(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	rm, err := s.rooms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		} else {
			log.Error().Err(err).Str("room", chi.URLParam(r, "id")).Msg("get room")
			http.Error(w, `{"error":"room_unavailable"}`, http.StatusInternalServerError)
		}
		return nil, false
	}
	return rm, true
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.room(w, r)
	if !ok {
		return
	}
	st, err := rm.State(r.Context())
	if err != nil {
		http.Error(w, `{"error":"room_unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	_ = json.NewEncoder(w).Encode(st)
}

func (s *Server) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.room(w, r)
	if !ok {
		return
	}
	h, err := rm.History(r.Context())
	switch {
	case errors.Is(err, room.ErrRoundInProgress):
		http.Error(w, `{"error":"round_in_progress"}`, http.StatusConflict)
		return
	case err != nil:
		http.Error(w, `{"error":"room_unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	_ = json.NewEncoder(w).Encode(h)
}

func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.room(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(s.roomURL(r, rm.ID()), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, `{"error":"qr_failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(png)
}

func (s *Server) handleLetter(w http.ResponseWriter, r *http.Request) {
	var req letterReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	s.applyIntent(w, r, protocol.AddLetter(s.actor(w, r), req.Letter))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	_ = json.NewDecoder(r.Body).Decode(&req) // colors are optional
	in := protocol.SubmitWord(s.actor(w, r))
	in.Colors = req.Colors
	s.applyIntent(w, r, in)
}

// intentHandler serves the intents that carry no payload.
func (s *Server) intentHandler(build func(actor string) protocol.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.applyIntent(w, r, build(s.actor(w, r)))
	}
}

// applyIntent routes one intent through its room. Validation messages become
// 422 responses; everything else answers with the resulting public state.
func (s *Server) applyIntent(w http.ResponseWriter, r *http.Request, in protocol.Intent) {
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rm, ok := s.room(w, r)
	if !ok {
		return
	}
	out, err := rm.Apply(r.Context(), in)
	if errors.Is(err, room.ErrReadOnly) {
		writeError(w, http.StatusConflict, "room_closed")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("room", rm.ID()).Str("type", string(in.Type)).Msg("apply intent")
		http.Error(w, `{"error":"room_unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if out.Validation != "" {
		writeError(w, http.StatusUnprocessableEntity, out.Validation)
		return
	}
	_ = json.NewEncoder(w).Encode(out.State)
}

// ------------------------------- WebSocket ---------------------------------

// handleWS upgrades the connection, registers it with the hub under the
// request's actor, and sends the joining client the current state.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.room(w, r)
	if !ok {
		return
	}
	actor := s.actor(w, r)

	// Upgrade writes its own response; carry over the anonymous cookie.
	var hdr http.Header
	if c := w.Header().Values("Set-Cookie"); len(c) > 0 {
		hdr = http.Header{"Set-Cookie": c}
	}
	ws, err := s.upgrader.Upgrade(w, r, hdr)
	if err != nil {
		log.Debug().Err(err).Str("room", rm.ID()).Msg("websocket upgrade")
		return
	}
	if err := s.hub.Register(ws, rm.ID(), actor, s.onIntent); err != nil {
		_ = ws.Close()
		return
	}
	log.Debug().Str("room", rm.ID()).Str("actor", actor).Msg("observer joined")

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()
	if err := rm.Sync(ctx, actor); err != nil {
		log.Warn().Err(err).Str("room", rm.ID()).Msg("initial sync")
	}
}

// onIntent is called from a connection's read loop for every inbound intent.
func (s *Server) onIntent(roomID string, in protocol.Intent) {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()
	rm, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		log.Debug().Err(err).Str("room", roomID).Msg("intent for unavailable room")
		return
	}
	if _, err := rm.Apply(ctx, in); err != nil {
		log.Warn().Err(err).Str("room", roomID).Str("type", string(in.Type)).Msg("apply intent")
	}
}

// ------------------------------- helpers -----------------------------------

// roomURL is the shareable link of a room.
func (s *Server) roomURL(r *http.Request, id string) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/rooms/" + id
}

func isLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
