package analyzer

import (
	"sort"
	"strings"
)

// phraseStats tracks how many titles in each corpus contain a phrase at
// least once. Document frequency, not term frequency: a title repeating a
// phrase counts once.
type phraseStats struct {
	MissedTitles    int
	NotMissedTitles int
}

// ngramStopwords are skipped as leading/trailing tokens so candidates stay
// meaningful catalyst language.
var ngramStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "and": true, "or": true,
	"for": true, "to": true, "in": true, "on": true, "with": true, "its": true,
	"by": true, "at": true, "as": true, "is": true, "are": true, "has": true,
	"inc": true, "corp": true, "ltd": true, "co": true,
}

// extractNGrams returns the distinct 1-4-grams of a title, lowercased, with
// stopword-edged and numeric-only grams dropped.
func extractNGrams(title string) []string {
	tokens := tokenize(title)
	seen := map[string]bool{}
	var grams []string
	for n := 1; n <= 4; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := tokens[i : i+n]
			if ngramStopwords[gram[0]] || ngramStopwords[gram[len(gram)-1]] {
				continue
			}
			if allNumeric(gram) {
				continue
			}
			phrase := strings.Join(gram, " ")
			if !seen[phrase] {
				seen[phrase] = true
				grams = append(grams, phrase)
			}
		}
	}
	return grams
}

func tokenize(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func allNumeric(gram []string) bool {
	for _, tok := range gram {
		for _, r := range tok {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// minePhrases builds document-frequency stats over both corpora and returns
// the candidate phrases in deterministic order.
func minePhrases(missedTitles, notMissedTitles []string) (map[string]*phraseStats, []string) {
	stats := map[string]*phraseStats{}
	count := func(titles []string, missed bool) {
		for _, title := range titles {
			for _, phrase := range extractNGrams(title) {
				s := stats[phrase]
				if s == nil {
					s = &phraseStats{}
					stats[phrase] = s
				}
				if missed {
					s.MissedTitles++
				} else {
					s.NotMissedTitles++
				}
			}
		}
	}
	count(missedTitles, true)
	count(notMissedTitles, false)

	phrases := make([]string, 0, len(stats))
	for p := range stats {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	return stats, phrases
}

// lift computes P(phrase|missed) / P(phrase|not_missed), using a half-count
// continuity correction when the phrase never appears in the not-missed
// corpus.
func lift(s *phraseStats, missedN, notMissedN int) float64 {
	if missedN == 0 || notMissedN == 0 {
		return 0
	}
	pMissed := float64(s.MissedTitles) / float64(missedN)
	pNot := float64(s.NotMissedTitles) / float64(notMissedN)
	if pNot == 0 {
		pNot = 0.5 / float64(notMissedN)
	}
	return pMissed / pNot
}

// presence marks which titles contain the phrase, for the bootstrap.
func presence(titles []string, phrase string) []bool {
	out := make([]bool, len(titles))
	for i, title := range titles {
		for _, p := range extractNGrams(title) {
			if p == phrase {
				out[i] = true
				break
			}
		}
	}
	return out
}
