package dashboard

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// renderMarkdown converts a scenario description to sanitized HTML. Scenario
// files are operator-edited, so the output is scrubbed before it reaches a
// browser.
func renderMarkdown(content string) string {
	if content == "" {
		return ""
	}
	extensions := blackfriday.CommonExtensions |
		blackfriday.HardLineBreak |
		blackfriday.NoEmptyLineBeforeBlock
	unsafe := blackfriday.Run([]byte(content), blackfriday.WithExtensions(extensions))
	return string(bluemonday.UGCPolicy().SanitizeBytes(unsafe))
}
