package ensemble

import (
	"strings"
)

// ──────────────────────────────────────────────
// Sentiment Classifier — lightweight rule-based scoring
// ──────────────────────────────────────────────

// Sentiment holds the detected tone, its valence, and all tone scores.
type Sentiment struct {
	Tone       string             // neutral/excited/frustrated/sad/bored/curious
	Valence    float64            // -1.0 .. 1.0
	Confidence float64            // 0.0 .. 1.0
	Scores     map[string]float64 // all tone scores
}

type weightedKeyword struct {
	keyword string
	weight  float64
}

// SentimentClassifier detects message sentiment via weighted keyword
// scoring. It is the local fallback; an external classifier may override
// it upstream.
type SentimentClassifier struct {
	patterns map[string][]weightedKeyword
}

// NewSentimentClassifier creates a classifier with built-in patterns.
func NewSentimentClassifier() *SentimentClassifier {
	return &SentimentClassifier{patterns: defaultSentimentPatterns()}
}

func defaultSentimentPatterns() map[string][]weightedKeyword {
	return map[string][]weightedKeyword{
		"excited": {
			{keyword: "awesome", weight: 0.4}, {keyword: "amazing", weight: 0.4},
			{keyword: "let's go", weight: 0.4}, {keyword: "hyped", weight: 0.5},
			{keyword: "can't wait", weight: 0.5}, {keyword: "love it", weight: 0.4},
			// Low weight — needs multiple hits (anti-false-positive for sarcasm)
			{keyword: "nice", weight: 0.2}, {keyword: "haha", weight: 0.2},
			{keyword: "lol", weight: 0.2}, {keyword: "great", weight: 0.3},
		},
		"frustrated": {
			{keyword: "wtf", weight: 0.5}, {keyword: "bullshit", weight: 0.5},
			{keyword: "annoying", weight: 0.4}, {keyword: "broken", weight: 0.3},
			{keyword: "useless", weight: 0.4}, {keyword: "terrible", weight: 0.4},
			{keyword: "hate", weight: 0.4}, {keyword: "stop it", weight: 0.4},
		},
		"sad": {
			{keyword: "sigh", weight: 0.4}, {keyword: "forget it", weight: 0.4},
			{keyword: "disappointed", weight: 0.4}, {keyword: "miss", weight: 0.3},
			{keyword: "lonely", weight: 0.5}, {keyword: "sorry", weight: 0.2},
			{keyword: "sad", weight: 0.4},
		},
		"bored": {
			{keyword: "boring", weight: 0.5}, {keyword: "bored", weight: 0.5},
			{keyword: "whatever", weight: 0.3}, {keyword: "meh", weight: 0.4},
			{keyword: "nothing to do", weight: 0.4},
		},
		"curious": {
			{keyword: "how does", weight: 0.4}, {keyword: "why", weight: 0.3},
			{keyword: "what if", weight: 0.4}, {keyword: "wonder", weight: 0.4},
			{keyword: "interesting", weight: 0.3}, {keyword: "tell me", weight: 0.3},
		},
	}
}

// toneValence maps each non-neutral tone to its valence sign.
var toneValence = map[string]float64{
	"excited":    1.0,
	"curious":    0.5,
	"bored":      -0.3,
	"sad":        -0.7,
	"frustrated": -1.0,
}

// Classify analyzes message text for sentiment.
func (c *SentimentClassifier) Classify(text string) Sentiment {
	lower := strings.ToLower(text)
	scores := map[string]float64{
		"neutral": 0, "excited": 0, "frustrated": 0,
		"sad": 0, "bored": 0, "curious": 0,
	}

	for tone, keywords := range c.patterns {
		for _, kw := range keywords {
			if strings.Contains(lower, kw.keyword) {
				scores[tone] += kw.weight
			}
		}
	}

	// Exclamation boost: >=2 marks push the leading emotion up (cap +0.2)
	if n := strings.Count(text, "!"); n >= 2 {
		boost := float64(n) * 0.1
		if boost > 0.2 {
			boost = 0.2
		}
		if top := maxTone(scores); top != "neutral" {
			scores[top] += boost
		}
	}

	// Trailing question mark leans curious
	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		scores["curious"] += 0.15
	}

	top := maxTone(scores)
	conf := scores[top]
	if conf > 1.0 {
		conf = 1.0
	}
	if conf < 0.3 {
		top = "neutral"
	}

	return Sentiment{
		Tone:       top,
		Valence:    toneValence[top] * conf,
		Confidence: conf,
		Scores:     scores,
	}
}

// toneOrder fixes the scan order so equal scores always resolve to the
// same tone regardless of map iteration.
var toneOrder = []string{"excited", "frustrated", "sad", "bored", "curious"}

func maxTone(scores map[string]float64) string {
	top, topScore := "neutral", 0.0
	for _, tone := range toneOrder {
		if score := scores[tone]; score > topScore {
			top, topScore = tone, score
		}
	}
	return top
}
