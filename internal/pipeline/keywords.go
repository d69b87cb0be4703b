package pipeline

import (
	"strings"

	"github.com/ppiankov/medrights/internal/intent"
)

const maxKeywords = 10

var stopWords = toSet(
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves",
	"you", "your", "yours", "yourself", "yourselves", "he", "him",
	"his", "himself", "she", "her", "hers", "herself", "it", "its",
	"itself", "they", "them", "their", "theirs", "themselves",
	"what", "which", "who", "whom", "this", "that", "these",
	"those", "am", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "having", "do", "does", "did",
	"doing", "a", "an", "the", "and", "but", "if", "or", "because",
	"as", "until", "while", "of", "at", "by", "for", "with",
	"about", "against", "between", "into", "through", "during",
	"before", "after", "above", "below", "to", "from", "up",
	"down", "in", "out", "on", "off", "over", "under", "again",
	"further", "then", "once", "here", "there", "when", "where",
	"why", "how", "all", "any", "both", "each", "few", "more",
	"most", "other", "some", "such", "no", "nor", "not", "only",
	"own", "same", "so", "than", "too", "very", "s", "t", "can",
	"will", "just", "don", "should", "now",
)

// Multi-word legal phrases reported as single underscore-joined keywords
var legalPhrases = []string{
	"medical records", "emergency care", "informed consent",
	"second opinion", "patient rights", "medical negligence",
	"overcharged", "without permission", "refused to give",
	"asked for payment", "shared information", "discriminated against",
}

// ExtractKeywords returns stop-word filtered query tokens longer than two
// characters followed by any recognised legal phrases, capped at ten.
func ExtractKeywords(query string) []string {
	normalized := intent.Normalize(query)

	keywords := []string{}
	for _, word := range strings.Fields(normalized) {
		if stopWords[word] || len(word) <= 2 {
			continue
		}
		keywords = append(keywords, word)
	}

	for _, phrase := range legalPhrases {
		if strings.Contains(normalized, phrase) {
			keywords = append(keywords, strings.ReplaceAll(phrase, " ", "_"))
		}
	}

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
