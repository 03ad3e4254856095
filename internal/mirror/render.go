package mirror

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robalobadob/wordle-live/internal/game"
	"github.com/robalobadob/wordle-live/internal/protocol"
)

var (
	clrBorder    = lipgloss.Color("#3a3a3c")
	clrCorrect   = lipgloss.Color("#538d4e")
	clrMisplaced = lipgloss.Color("#b59f3b")
	clrIncorrect = lipgloss.Color("#3a3a3c")
	clrText      = lipgloss.Color("#ffffff")
	clrSubtle    = lipgloss.Color("#818384")
	clrBanner    = lipgloss.Color("#f85149")

	tile  = lipgloss.NewStyle().Width(3).Align(lipgloss.Center).Bold(true).Foreground(clrText)
	key   = lipgloss.NewStyle().Padding(0, 1).Foreground(clrText)
	faint = lipgloss.NewStyle().Foreground(clrSubtle)
)

var keyRows = []string{"QWERTYUIOP", "ASDFGHJKL", "ZXCVBNM"}

func verdictStyle(base lipgloss.Style, v game.Verdict) lipgloss.Style {
	switch v {
	case game.VerdictCorrect:
		return base.Background(clrCorrect)
	case game.VerdictMisplaced:
		return base.Background(clrMisplaced)
	case game.VerdictIncorrect:
		return base.Background(clrIncorrect).Foreground(clrSubtle)
	default:
		return base
	}
}

// Render draws the board, keyboard and banner of gs for a terminal.
func Render(gs protocol.GameState, banner string) string {
	var b strings.Builder

	title := fmt.Sprintf("room %s  round %d  played %d", gs.RoomID, gs.Round, gs.GamesPlayed)
	b.WriteString(faint.Render(title))
	b.WriteString("\n\n")

	rows := make([]string, len(gs.Board))
	for r, row := range gs.Board {
		cells := make([]string, len(row))
		for c, cell := range row {
			letter := cell.String()
			if letter == "" {
				letter = "·"
			}
			v := game.VerdictNone
			if r < len(gs.Colors) && c < len(gs.Colors[r]) {
				v = gs.Colors[r][c]
			}
			cells[c] = verdictStyle(tile, v).Render(letter)
		}
		rows[r] = lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	}
	board := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(clrBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	b.WriteString(board)
	b.WriteString("\n")

	for _, kr := range keyRows {
		keys := make([]string, len(kr))
		for i := 0; i < len(kr); i++ {
			keys[i] = verdictStyle(key, gs.Keyboard.Get(kr[i])).Render(string(kr[i]))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, keys...))
		b.WriteString("\n")
	}

	switch gs.Phase {
	case game.PhaseWon:
		fmt.Fprintf(&b, "\n%s solved it: %s\n", gs.Winner, gs.Target)
	case game.PhaseExhausted:
		if gs.Target != "" {
			fmt.Fprintf(&b, "\nout of rows, the word was %s\n", gs.Target)
		} else {
			b.WriteString("\nout of rows\n")
		}
	}
	if banner != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(clrBanner).Bold(true).Render(banner))
		b.WriteString("\n")
	}
	return b.String()
}
