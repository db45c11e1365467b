package verify

import (
	"strings"

	"github.com/obikwelu/resulthawk/pkg/models"
)

// Phrase tables for post-submit page classification. The portals are not
// ours, so matching is on lowercased substrings of the rendered page text.
//
// cardPhrases are credential/resource problems (a used-up or bad card):
// classified error. notFoundPhrases are user-data problems (no such result):
// classified not_found. Card phrases are checked first because several
// portals phrase card exhaustion as "result cannot be found for this card".
var cardPhrases = []string{
	"card usage has exceeded",
	"usage has exceeded",
	"card has expired",
	"card is expired",
	"invalid pin",
	"invalid card",
	"invalid token",
	"token has been used",
	"card exhausted",
	"maximum number of times",
}

var notFoundPhrases = []string{
	"no result found",
	"result not found",
	"no record found",
	"no records found",
	"result not available",
	"no result is available",
	"candidate not found",
	"invalid examination number",
}

var resultSignals = []string{
	"candidate name",
	"subject",
	"grade",
}

// ClassifyText decides the three-way classification from the rendered page
// text, plus a human-readable message. Positive result signals require at
// least two distinct matches so a lone "subject" label on an error page does
// not read as success.
func ClassifyText(text string) (string, string) {
	lower := strings.ToLower(text)

	for _, phrase := range cardPhrases {
		if strings.Contains(lower, phrase) {
			return models.OutcomeError, snippetAround(text, phrase)
		}
	}

	for _, phrase := range notFoundPhrases {
		if strings.Contains(lower, phrase) {
			return models.OutcomeNotFound, snippetAround(text, phrase)
		}
	}

	signals := 0
	for _, signal := range resultSignals {
		if strings.Contains(lower, signal) {
			signals++
		}
	}
	if signals >= 2 {
		return models.OutcomeVerified, "result page detected"
	}

	return models.OutcomeError, unrecognizedResponse
}

// unrecognizedResponse marks a page that matched no phrase table; the worker
// refines it with the page address when the submit never left the form.
const unrecognizedResponse = "unrecognized portal response"

// snippetAround returns the line of the page text containing the matched
// phrase, so the stored message reads like the portal's own wording.
func snippetAround(text, phrase string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), phrase) {
			return strings.TrimSpace(line)
		}
	}
	return phrase
}
