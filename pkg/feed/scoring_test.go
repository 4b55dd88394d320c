package feed

import (
	"testing"

	"socialfeed/pkg/model"

	"github.com/stretchr/testify/assert"
)

func TestScoreDelta(t *testing.T) {
	weights := map[model.ReactionKind]int64{
		model.REACTION_FAVOURITE: 1,
		model.REACTION_QUOTE:     2,
		model.REACTION_REPLY:     2,
		model.REACTION_VOTE:      2,
		model.REACTION_REPEAT:    4,
		model.REACTION_BOOKMARK:  0,
	}
	for kind, weight := range weights {
		t.Run(string(kind), func(t *testing.T) {
			assert.Equal(t, weight, ScoreDelta(kind, false, "first"))
			assert.Equal(t, -weight, ScoreDelta(kind, true, "first"))
			assert.Zero(t, ScoreDelta(kind, false, "first")+ScoreDelta(kind, true, "first"))
		})
	}

	t.Run("Should not score abstentions", func(t *testing.T) {
		assert.Zero(t, ScoreDelta(model.REACTION_VOTE, false, NotaOption))
		assert.Zero(t, ScoreDelta(model.REACTION_VOTE, true, NotaOption))
	})
}

func TestScoreScenario(t *testing.T) {
	var score int64
	steps := []struct {
		kind     model.ReactionKind
		undo     bool
		expected int64
	}{
		{model.REACTION_REPEAT, false, 4},
		{model.REACTION_FAVOURITE, false, 5},
		{model.REACTION_REPEAT, true, 1},
		{model.REACTION_FAVOURITE, true, 0},
	}
	for _, step := range steps {
		score += ScoreDelta(step.kind, step.undo, "")
		assert.Equal(t, step.expected, score)
	}
}
