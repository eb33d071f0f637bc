package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
)

var (
	blockColor  = color.New(color.FgRed, color.Bold)
	reviewColor = color.New(color.FgYellow, color.Bold)
	warnColor   = color.New(color.FgYellow)
	allowColor  = color.New(color.FgGreen)
	headerColor = color.New(color.FgWhite, color.Bold)
	mutedColor  = color.New(color.FgHiBlack)
)

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func verdictColor(v engine.Verdict) *color.Color {
	switch v {
	case engine.VerdictBlock:
		return blockColor
	case engine.VerdictReview:
		return reviewColor
	case engine.VerdictWarn:
		return warnColor
	default:
		return allowColor
	}
}

func actionColor(a tools.Action) *color.Color {
	switch a {
	case tools.ActionBlock:
		return blockColor
	case tools.ActionAllow:
		return allowColor
	default:
		return warnColor
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnSeparator("│")
	table.SetRowSeparator("─")
	table.SetHeaderLine(true)
	return table
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHeader(w io.Writer, title string) {
	headerColor.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("─", 60))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
