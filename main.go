package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-live/internal/config"
	"github.com/robalobadob/wordle-live/internal/daily"
	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/httpserver"
	"github.com/robalobadob/wordle-live/internal/hub"
	"github.com/robalobadob/wordle-live/internal/room"
	"github.com/robalobadob/wordle-live/internal/store"
	"github.com/robalobadob/wordle-live/internal/words"
)

var version = "dev"

func main() {
	config.LoadDotEnv()

	cfg := &config.Config{}
	cmd := config.NewCommand(cfg, version, serve)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	cfg.SetupLogging(os.Stderr)

	if err := words.Init(words.Config{
		Length:      cfg.WordLength,
		AnswersFile: cfg.AnswersFile,
		AllowedFile: cfg.AllowedFile,
	}); err != nil {
		return err
	}
	lists, err := words.Default()
	if err != nil {
		return err
	}
	answers, allowed := lists.Stats()
	log.Info().Int("length", lists.Length()).Int("answers", answers).Int("allowed", allowed).Msg("word lists loaded")

	var st store.Store
	if cfg.DBPath != "" {
		db, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		st = db
		log.Info().Str("path", cfg.DBPath).Msg("sqlite store opened")
	} else {
		st = store.NewMemoryStore()
		log.Warn().Msg("no --db given; rooms and accounts are kept in memory")
	}
	defer st.Close()

	h := hub.New()
	defer h.Close()

	mcfg := room.ManagerConfig{
		Rows:        cfg.Rows,
		Visibility:  game.Visibility(cfg.Visibility),
		Words:       lists.RandomAnswer,
		Daily:       daily.Schedule{Salt: cfg.DailySalt, Answers: lists.Answers()},
		Publisher:   h,
		History:     st,
		Users:       st,
		IdleTimeout: cfg.IdleTimeout,
		Observers:   h.Count,
		OnClose:     h.CloseRoom,
	}
	if cfg.Strict {
		mcfg.Allowed = lists.IsAllowed
	}
	rooms := room.NewManager(ctx, mcfg)
	defer rooms.Shutdown()

	srv := httpserver.New(httpserver.Deps{
		Config: cfg,
		Rooms:  rooms,
		Hub:    h,
		Store:  st,
		Words:  lists,
	})
	hs := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("version", version).Msg("starting wordle-live")
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(sctx)
}
