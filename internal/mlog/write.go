package mlog

import (
	"strings"

	"github.com/dogmatiq/iago/must"
)

// String returns a log line made of labelled ids, then icons, then the
// non-empty text segments joined by SeparatorIcon.
func String(
	ids []IconWithLabel,
	icons []Icon,
	text ...string,
) string {
	var w strings.Builder

	for _, id := range ids {
		must.WriteTo(&w, id)
		must.WriteString(&w, "  ")
	}

	for _, icon := range icons {
		must.WriteTo(&w, icon)
		must.WriteString(&w, " ")
	}

	first := true
	for _, t := range text {
		if t == "" {
			continue
		}

		must.WriteString(&w, " ")

		if !first {
			must.WriteTo(&w, SeparatorIcon)
			must.WriteString(&w, " ")
		}

		must.WriteString(&w, t)
		first = false
	}

	return w.String()
}
