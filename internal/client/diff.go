package client

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ConflictPreview renders a compact marker-prefixed diff between the local
// document and the server revision it conflicts with, for display when a
// stale push is rejected. Unchanged spans are elided.
func ConflictPreview(localContent, serverContent string) string {
	differ := diffmatchpatch.New()
	localRunes, serverRunes, lineIndex := differ.DiffLinesToChars(localContent, serverContent)
	diffs := differ.DiffMain(localRunes, serverRunes, false)
	diffs = differ.DiffCharsToLines(diffs, lineIndex)

	var builder strings.Builder
	for _, fragment := range diffs {
		text := strings.TrimRight(fragment.Text, "\n")
		if text == "" {
			continue
		}
		switch fragment.Type {
		case diffmatchpatch.DiffDelete:
			writeMarked(&builder, "-", text)
		case diffmatchpatch.DiffInsert:
			writeMarked(&builder, "+", text)
		case diffmatchpatch.DiffEqual:
			// Unchanged text carries no signal in a conflict notice.
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}

func writeMarked(builder *strings.Builder, marker string, text string) {
	for _, line := range strings.Split(text, "\n") {
		builder.WriteString(marker)
		builder.WriteString(" ")
		builder.WriteString(line)
		builder.WriteString("\n")
	}
}
