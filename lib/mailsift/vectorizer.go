package mailsift

import (
	"math"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
)

// vectorizer maps a text to a sparse tf-idf vector over character n-grams.
// The vocabulary and idf weights are learned once by fit and never change,
// n-grams unseen at fit time are silently dropped on transform.
type vectorizer struct {
	Vocab map[string]int // n-gram -> column index
	IDF   []float64      // per column, same order as Vocab values
	MinN  int
	MaxN  int
}

func newVectorizer() *vectorizer {
	return &vectorizer{Vocab: map[string]int{}, MinN: 3, MaxN: 5}
}

// fit learns the n-gram vocabulary and idf weights from the given documents.
// idf is smoothed: ln((1+docs)/(1+df)) + 1
func (v *vectorizer) fit(docs []string) {
	docFreq := map[string]int{}
	for _, doc := range docs {
		seen := map[string]struct{}{}
		for _, gram := range charNGrams(normalize(doc), v.MinN, v.MaxN) {
			if _, ok := seen[gram]; ok {
				continue
			}
			seen[gram] = struct{}{}
			docFreq[gram]++
		}
	}

	v.Vocab = make(map[string]int, len(docFreq))
	v.IDF = make([]float64, 0, len(docFreq))
	for _, doc := range docs { // first-seen order keeps column assignment deterministic
		for _, gram := range charNGrams(normalize(doc), v.MinN, v.MaxN) {
			if _, ok := v.Vocab[gram]; ok {
				continue
			}
			v.Vocab[gram] = len(v.IDF)
			v.IDF = append(v.IDF, math.Log(float64(1+len(docs))/float64(1+docFreq[gram]))+1)
		}
	}
}

// transform converts a text to an l2-normalized tf-idf vector over the fitted
// vocabulary. Unknown n-grams are ignored, empty input gives an empty vector.
func (v *vectorizer) transform(text string) map[int]float64 {
	res := map[int]float64{}
	for _, gram := range charNGrams(normalize(text), v.MinN, v.MaxN) {
		if col, ok := v.Vocab[gram]; ok {
			res[col] += v.IDF[col] // tf accumulates by repeated addition of idf
		}
	}

	var norm float64
	for _, val := range res {
		norm += val * val
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for col := range res {
			res[col] /= norm
		}
	}
	return res
}

// dim returns the width of the feature space.
func (v *vectorizer) dim() int { return len(v.IDF) }

// normalize lowercases the text and removes control, format and invisible
// characters as well as emojis, the usual obfuscation vehicles in spam.
func normalize(text string) string {
	text = gomoji.RemoveEmojis(text)
	var result strings.Builder
	result.Grow(len(text))
	for _, r := range text {
		if unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if (r >= 0x200B && r <= 0x200F) || (r >= 0x2060 && r <= 0x206F) {
			continue
		}
		result.WriteRune(unicode.ToLower(r))
	}
	return result.String()
}

// charNGrams extracts overlapping contiguous rune sequences of lengths minN..maxN.
func charNGrams(text string, minN, maxN int) []string {
	runes := []rune(text)
	var grams []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(runes); i++ {
			grams = append(grams, string(runes[i:i+n]))
		}
	}
	return grams
}
