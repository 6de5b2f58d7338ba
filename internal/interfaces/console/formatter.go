package console

import (
	"sort"
	"strings"

	"tickcast/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Formatter renders the whole book on one line, each quote coloured by
// its direction since the previous render.
type Formatter struct {
	prev map[string]float64
}

func NewFormatter() *Formatter {
	return &Formatter{prev: make(map[string]float64)}
}

func (f *Formatter) Render(quotes map[string]float64, mode RenderMode) string {
	symbols := make([]string, 0, len(quotes))
	for s := range quotes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}
	sb.WriteString(colorize("[TICKCAST] ", ansiDim))

	for i, sym := range symbols {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		px := quotes[sym]

		col := ansiYellow
		if prev, ok := f.prev[sym]; ok {
			switch domain.Compare(prev, px) {
			case domain.DirectionUp:
				col = ansiGreen
			case domain.DirectionDown:
				col = ansiRed
			}
		}
		f.prev[sym] = px

		sb.WriteString(sym)
		sb.WriteString(" ")
		sb.WriteString(colorize(domain.FormatPrice(px), col))
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}
