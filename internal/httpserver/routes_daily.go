// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
//   - GET /rooms/daily        → today's shared room (created on first use)
//   - GET /daily/leaderboard  → fastest wins for today (or ?date=YYYY-MM-DD)
//
// Everyone who opens the daily room plays the same board. The word comes from
// the deterministic date + salt schedule, so restarts agree on it.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-live/internal/daily"
	"github.com/robalobadob/wordle-live/internal/store"
)

const (
	leaderboardLimit    = 20
	leaderboardMaxLimit = 100
)

type dailyRes struct {
	RoomID string `json:"roomId"`
	Date   string `json:"date"`
	URL    string `json:"url"`
}

type leaderboardRes struct {
	Date string                 `json:"date"`
	Rows []store.LeaderboardRow `json:"rows"`
}

// mountDaily registers the daily routes.
func (s *Server) mountDaily(r chi.Router) {
	r.Get("/rooms/daily", s.handleDailyRoom)
	r.Get("/daily/leaderboard", s.handleLeaderboard)
}

// handleDailyRoom returns today's room so clients can join it.
func (s *Server) handleDailyRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.rooms.Daily(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("daily room")
		http.Error(w, `{"error":"no_daily_word"}`, http.StatusServiceUnavailable)
		return
	}
	_ = json.NewEncoder(w).Encode(dailyRes{
		RoomID: rm.ID(),
		Date:   daily.DateKey(s.now()),
		URL:    s.roomURL(r, rm.ID()),
	})
}

// handleLeaderboard returns the won rounds of a date, fastest first.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(s.now())
	} else if _, err := daily.ParseDateKey(date); err != nil {
		http.Error(w, `{"error":"bad_date"}`, http.StatusBadRequest)
		return
	}
	limit := leaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > leaderboardMaxLimit {
			http.Error(w, `{"error":"bad_limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := s.store.Leaderboard(r.Context(), date, limit)
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("leaderboard")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []store.LeaderboardRow{}
	}
	_ = json.NewEncoder(w).Encode(leaderboardRes{Date: date, Rows: rows})
}
