package relay

import (
	"strings"

	"wabridge/internal/domain"
)

// Keyword sets for RSVP poll votes. Matching is case-insensitive substring,
// affirmative checked first. The sets are fixed and multilingual.
var (
	affirmativeKeywords = []string{
		"نعم", "اكيد", "أكيد", "سأحضر", "حاضر", "موافق",
		"yes", "confirm",
	}
	negativeKeywords = []string{
		"لا", "اعتذر", "أعتذر",
		"no", "decline", "sorry",
	}
)

// ClassifyVote maps the selected option texts onto an RSVP outcome.
// Unmatched votes are unclassified: they are still forwarded, but without a
// response type and without an auto-reply lookup.
func ClassifyVote(selected []string) domain.VoteClass {
	for _, opt := range selected {
		lower := strings.ToLower(opt)
		for _, kw := range affirmativeKeywords {
			if strings.Contains(lower, kw) {
				return domain.VoteAccepted
			}
		}
	}
	for _, opt := range selected {
		lower := strings.ToLower(opt)
		for _, kw := range negativeKeywords {
			if strings.Contains(lower, kw) {
				return domain.VoteDeclined
			}
		}
	}
	return domain.VoteUnclassified
}
