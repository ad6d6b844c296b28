package pipeline

import "regexp"

// Sanitization is independent of validation: Validate never mutates and
// Sanitize never re-validates.
var (
	scriptBlockRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	scriptTagRe    = regexp.MustCompile(`(?is)</?script\b[^>]*>`)
	javascriptRe   = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
)

// Sanitize returns a copy of rows with script blocks, javascript: URIs and
// inline event-handler attributes stripped from every cell. Input rows are
// never mutated.
func Sanitize(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		clean := make([]string, len(row))
		for j, cell := range row {
			clean[j] = sanitizeCell(cell)
		}
		out[i] = clean
	}
	return out
}

func sanitizeCell(cell string) string {
	cell = scriptBlockRe.ReplaceAllString(cell, "")
	cell = scriptTagRe.ReplaceAllString(cell, "")
	cell = javascriptRe.ReplaceAllString(cell, "")
	cell = eventHandlerRe.ReplaceAllString(cell, "")
	return cell
}
