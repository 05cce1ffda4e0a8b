package grammar

import (
	"fmt"
	"strings"
)

// Summarize renders a short, human-readable description of g: type count,
// dispatch kind, and registry size. It has no UI dependency of its own and
// is meant for quick inspection by a terminal UI or log line.
func Summarize(g *Grammar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "record_stream grammar: %d type(s), endian=%s", len(g.Types), g.EndianDefault)
	switch g.Dispatch.Kind {
	case DispatchUseType:
		fmt.Fprintf(&b, ", dispatch=use(%s)", g.Dispatch.UseType)
	case DispatchSwitch:
		fmt.Fprintf(&b, ", dispatch=switch(%d case(s))", len(g.Dispatch.Switch.Cases))
	}
	if n := len(g.Registry); n > 0 {
		noun := "entries"
		if n == 1 {
			noun = "entry"
		}
		fmt.Fprintf(&b, ", %d registry %s", n, noun)
	}
	return b.String()
}
