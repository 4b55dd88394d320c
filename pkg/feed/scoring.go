package feed

import "socialfeed/pkg/model"

// score weights per reaction kind
const (
	FAVOURITE_SCORE int64 = 1
	QUOTE_SCORE     int64 = 2
	REPLY_SCORE     int64 = 2
	VOTE_SCORE      int64 = 2
	REPEAT_SCORE    int64 = 4
)

// NotaOption is the "none of the above" poll answer, which does not score
const NotaOption = "nota"

// ScoreDelta returns the change a reaction makes to the score of the post it
// targets. Undoing a reaction yields the exact opposite change.
func ScoreDelta(kind model.ReactionKind, undo bool, option string) int64 {
	var weight int64
	switch kind {
	case model.REACTION_FAVOURITE:
		weight = FAVOURITE_SCORE
	case model.REACTION_QUOTE:
		weight = QUOTE_SCORE
	case model.REACTION_REPLY:
		weight = REPLY_SCORE
	case model.REACTION_VOTE:
		if option == NotaOption {
			return 0
		}
		weight = VOTE_SCORE
	case model.REACTION_REPEAT:
		weight = REPEAT_SCORE
	default:
		return 0
	}
	if undo {
		return -weight
	}
	return weight
}
