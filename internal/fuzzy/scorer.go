package fuzzy

import "unicode"

// Scorer calculates match scores.
type Scorer interface {
	// Score calculates a match score based on various factors.
	// Higher scores indicate better matches.
	//
	// Parameters:
	//   - queryRunes: the normalized query runes
	//   - originalRunes: original text runes (preserves case)
	//   - textRunes: normalized text runes (lowercase if case-insensitive)
	//   - matches: rune indices of matched characters in text
	Score(queryRunes, originalRunes, textRunes []rune, matches []int) int
}

// WeightedScorer scores matches with configurable weights.
type WeightedScorer struct {
	// BaseScore is the starting score for any match.
	BaseScore int

	// ConsecutiveBonus is added for each consecutive character match.
	ConsecutiveBonus int

	// WordBoundaryBonus is added for matches at word boundaries.
	WordBoundaryBonus int

	// PrefixBonus is added when the first match is at position 0.
	PrefixBonus int

	// ExactPrefixBonus is added when query matches the start of text exactly.
	ExactPrefixBonus int

	// GapPenalty is subtracted for each gap character between matches.
	GapPenalty int

	// LeadingPenalty is subtracted for each character before first match.
	LeadingPenalty int

	// LengthBonusThreshold rewards texts shorter than this many runes.
	LengthBonusThreshold int
}

// DefaultScorer returns the scorer used by NewMatcher.
func DefaultScorer() WeightedScorer {
	return WeightedScorer{
		BaseScore:            100,
		ConsecutiveBonus:     20,
		WordBoundaryBonus:    15,
		PrefixBonus:          25,
		ExactPrefixBonus:     50,
		GapPenalty:           2,
		LeadingPenalty:       1,
		LengthBonusThreshold: 20,
	}
}

// Score implements the Scorer interface.
func (s WeightedScorer) Score(queryRunes, originalRunes, textRunes []rune, matches []int) int {
	if len(matches) == 0 {
		return 0
	}

	score := s.BaseScore

	for i := 1; i < len(matches); i++ {
		if matches[i] == matches[i-1]+1 {
			score += s.ConsecutiveBonus
		}
	}

	for _, idx := range matches {
		if isWordBoundary(originalRunes, idx) {
			score += s.WordBoundaryBonus
		}
	}

	if matches[0] == 0 {
		score += s.PrefixBonus
	}

	if len(matches) > 1 {
		totalGap := matches[len(matches)-1] - matches[0] - len(matches) + 1
		if totalGap > 0 {
			score -= totalGap * s.GapPenalty
		}
	}

	if matches[0] > 0 {
		score -= matches[0] * s.LeadingPenalty
	}

	if n := len(textRunes); n < s.LengthBonusThreshold {
		score += s.LengthBonusThreshold - n
	}

	if hasRunePrefix(textRunes, queryRunes) {
		score += s.ExactPrefixBonus
	}

	// Any match scores at least 1 so MinScore 0 keeps it.
	if score < 1 {
		score = 1
	}
	return score
}

func hasRunePrefix(text, prefix []rune) bool {
	if len(text) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if text[i] != r {
			return false
		}
	}
	return true
}

// isWordBoundary checks if the rune at idx starts a word.
func isWordBoundary(runes []rune, idx int) bool {
	if idx == 0 {
		return true
	}
	if idx >= len(runes) {
		return false
	}

	prev, cur := runes[idx-1], runes[idx]

	// Separators: space, punctuation ("-", ":", "/", "_", ".")
	if unicode.IsSpace(prev) || unicode.IsPunct(prev) {
		return true
	}

	// camelCase
	return unicode.IsLower(prev) && unicode.IsUpper(cur)
}
