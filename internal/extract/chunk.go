package extract

import (
	"strings"
	"unicode/utf8"
)

// DefaultDelimiter ends a sentence unit when no delimiters are configured.
const DefaultDelimiter = "。"

// SplitText cuts text into chunks of whole sentence units. A unit ends right after any delimiter and
// keeps it. Units are packed greedily: the current chunk is flushed before a unit that would push it past
// chunkSize runes. A single unit longer than chunkSize becomes its own chunk.
// Concatenating the chunks reproduces text exactly.
func SplitText(text string, delimiters []string, chunkSize int) []string {
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 2000
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	for _, unit := range splitUnits(text, delimiters) {
		n := utf8.RuneCountInString(unit)
		if size > 0 && size+n > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
		current.WriteString(unit)
		size += n
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitUnits splits after every delimiter occurrence, keeping the delimiter on the left unit.
func splitUnits(text string, delimiters []string) []string {
	var units []string
	rest := text
	for rest != "" {
		cut := -1
		for _, d := range delimiters {
			if d == "" {
				continue
			}
			if i := strings.Index(rest, d); i >= 0 {
				if end := i + len(d); cut == -1 || end < cut {
					cut = end
				}
			}
		}
		if cut == -1 {
			units = append(units, rest)
			break
		}
		units = append(units, rest[:cut])
		rest = rest[cut:]
	}
	return units
}
