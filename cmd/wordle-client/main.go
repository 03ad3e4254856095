// Command wordle-client is a terminal observer for a shared board.
//
// Type a word and press enter to spell it onto the board and submit it.
// "-" deletes a letter, "!new" starts the next round once this one ended,
// "!quit" leaves.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/wordle-live/internal/mirror"
	"github.com/robalobadob/wordle-live/internal/protocol"
)

var version = "dev"

type options struct {
	server string
	room   string
	answer string
	debug  bool
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "wordle-client",
		Short:         "Play a shared Wordle board from the terminal.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&opts.server, "server", "s", "http://localhost:5175", "server base URL")
	fs.StringVarP(&opts.room, "room", "r", "daily", `room ID, "daily" for today's room or "new" to create one`)
	fs.StringVar(&opts.answer, "answer", "", `fixed word for a "new" room`)
	fs.BoolVar(&opts.debug, "debug", false, "debug logging")

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("wordle-client")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if opts.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	base, err := url.Parse(strings.TrimRight(opts.server, "/"))
	if err != nil {
		return fmt.Errorf("bad --server: %w", err)
	}
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	roomID, err := resolveRoom(client, base, opts)
	if err != nil {
		return err
	}

	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/rooms/" + roomID + "/ws"
	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to room %s: %w", roomID, err)
	}
	defer ws.Close()

	var (
		outMu  sync.Mutex
		view   *mirror.View
		banner *mirror.Banner
	)
	redraw := func() {
		outMu.Lock()
		defer outMu.Unlock()
		gs, ok := view.State()
		if !ok {
			return
		}
		fmt.Print("\033[H\033[2J")
		fmt.Println(mirror.Render(gs, banner.Current()))
		fmt.Print("> ")
	}
	banner = mirror.NewBanner(mirror.DefaultBannerTimeout, func(string) { redraw() })
	defer banner.Stop()
	view = mirror.NewView(banner)

	done := make(chan error, 1)
	go func() {
		for {
			_, b, err := ws.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			if err := view.Handle(b); err != nil {
				log.Debug().Err(err).Msg("ignored message")
				continue
			}
			redraw()
		}
	}()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	send := func(in protocol.Intent) error {
		return ws.WriteJSON(in)
	}

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-done:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			intents, quit := parseLine(line)
			if quit {
				return nil
			}
			for _, in := range intents {
				if err := send(in); err != nil {
					return err
				}
			}
			if len(intents) == 0 {
				redraw()
			}
		}
	}
}

// parseLine maps one input line to intents. The actor is filled in by the server.
func parseLine(line string) (intents []protocol.Intent, quit bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil, false
	case line == "!quit":
		return nil, true
	case line == "!new":
		return []protocol.Intent{protocol.NewRound("")}, false
	case strings.Trim(line, "-") == "":
		for range line {
			intents = append(intents, protocol.Backspace(""))
		}
		return intents, false
	}
	for _, r := range line {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			intents = append(intents, protocol.AddLetter("", string(r)))
		}
	}
	if len(intents) > 0 {
		intents = append(intents, protocol.SubmitWord(""))
	}
	return intents, false
}

// resolveRoom turns the --room flag into a room ID.
func resolveRoom(client *http.Client, base *url.URL, opts *options) (string, error) {
	var res struct {
		RoomID string `json:"roomId"`
	}
	var (
		resp *http.Response
		err  error
	)
	switch opts.room {
	case "daily":
		resp, err = client.Get(base.String() + "/rooms/daily")
	case "new":
		body, _ := json.Marshal(map[string]string{"answer": opts.answer})
		resp, err = client.Post(base.String()+"/rooms", "application/json", bytes.NewReader(body))
	default:
		return opts.room, nil
	}
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("resolve room %q: %s", opts.room, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	return res.RoomID, nil
}
