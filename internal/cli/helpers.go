package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/agusx1211/agentmail/internal/signal"
	"github.com/agusx1211/agentmail/internal/theme"
)

// exitCancelled is the conventional exit status after SIGINT.
const exitCancelled = 130

func exitCode(err error) int {
	if errors.Is(err, signal.ErrCancelled) {
		return exitCancelled
	}
	return 1
}

// styled reports whether w is a terminal that should get colors and borders.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printHeader(w io.Writer, title string) {
	if styled(w) {
		fmt.Fprintln(w, theme.Header.Render(title))
		return
	}
	fmt.Fprintln(w, title)
}

func printField(w io.Writer, label, value string) {
	if styled(w) {
		fmt.Fprintf(w, "  %s %s\n", theme.Label.Render(fmt.Sprintf("%-14s", label+":")), value)
		return
	}
	fmt.Fprintf(w, "  %-14s %s\n", label+":", value)
}

func statusBadge(w io.Writer, status string) string {
	if styled(w) {
		return theme.StatusBadge(status)
	}
	return status
}

// printTable renders rows as a bordered table on a terminal and as
// tab-separated lines otherwise, so output pipes cleanly into cut and awk.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	if !styled(w) {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(theme.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Inherit(theme.Header)
			}
			return s
		})
	fmt.Fprintln(w, t.String())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, maxLen int) string {
	s = firstLine(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
