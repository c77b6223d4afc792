package classify

import "strings"

// SentimentAnalyzer scores text in [-1, 1]. The source is pluggable; the
// pipeline treats a disabled analyzer as sentiment 0.
type SentimentAnalyzer interface {
	Sentiment(text string) float64
}

// NullSentiment is the disabled analyzer.
type NullSentiment struct{}

func (NullSentiment) Sentiment(string) float64 { return 0 }

// LexiconSentiment is a small word-polarity scorer tuned for press-release
// vocabulary. Score = (pos - neg) / (pos + neg), damped for thin evidence.
type LexiconSentiment struct {
	positive map[string]bool
	negative map[string]bool
}

func NewLexiconSentiment() *LexiconSentiment {
	return &LexiconSentiment{
		positive: wordSet(
			"approval", "approved", "approves", "positive", "successful", "success",
			"breakthrough", "record", "strong", "growth", "beats", "exceeds",
			"surpasses", "awarded", "wins", "granted", "milestone", "expands",
			"accelerates", "upgraded", "raises", "profitable", "landmark",
		),
		negative: wordSet(
			"failed", "failure", "miss", "missed", "decline", "declines",
			"bankruptcy", "delisting", "concern", "investigation", "lawsuit",
			"halted", "suspended", "downgrade", "downgraded", "warning", "recall",
			"terminated", "default", "dilution", "weak", "loss", "losses",
		),
	}
}

func (l *LexiconSentiment) Sentiment(text string) float64 {
	var pos, neg float64
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		switch {
		case l.positive[token]:
			pos++
		case l.negative[token]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	// Damp single-word evidence: one hit scores 0.5, not 1.0.
	return (pos - neg) / (pos + neg + 1)
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
