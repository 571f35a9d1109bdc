// Package mailsift implements a small spam/ham text classification pipeline:
// a character n-gram tf-idf vectorizer feeding a feed-forward network with two
// hidden layers. The pipeline is fitted once, immutable afterwards and safe
// for concurrent scoring. A fitted pipeline can be persisted to a versioned
// artifact file and loaded back, the Provider in this package handles the
// load-or-fallback resolution.
//
// Character n-grams (lengths 3 to 5) are used instead of word tokens on
// purpose, they tolerate misspellings and obfuscated spam and work for
// Vietnamese text without a word segmenter.
package mailsift

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/go-pkgz/fileutils"
)

// Sample is a single training example for the fallback fit.
type Sample struct {
	Text string
	Spam bool
}

// Pipeline couples a fitted vectorizer with a fitted classifier. The two are
// fitted jointly by Fit or restored together by Load, never used independently.
type Pipeline struct {
	vec *vectorizer
	net *network
}

// fitSeed makes training reproducible, matches the original demo model
const fitSeed = 42

// hidden layer sizes of the classifier
var hiddenSizes = []int{128, 64}

// Fit trains a new pipeline on the given samples. The vectorizer vocabulary
// is learned first, then the network is trained on the vectorized samples.
func Fit(samples []Sample) *Pipeline {
	docs := make([]string, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		docs[i] = s.Text
		if s.Spam {
			labels[i] = 1
		}
	}

	vec := newVectorizer()
	vec.fit(docs)

	inputs := make([]map[int]float64, len(docs))
	for i, doc := range docs {
		inputs[i] = vec.transform(doc)
	}

	rnd := rand.New(rand.NewSource(fitSeed)) //nolint:gosec // deterministic fit, not crypto
	net := newNetwork(vec.dim(), hiddenSizes, rnd)
	net.train(inputs, labels, trainEpochs, trainRate, trainL2)

	return &Pipeline{vec: vec, net: net}
}

// Score returns the estimated spam probability for the text, always in [0, 1].
// Deterministic for a fixed pipeline, never fails, any string is accepted.
func (p *Pipeline) Score(text string) float64 {
	probs, _ := p.net.forward(p.vec.transform(text))
	return probs[1]
}

// modelVersion guards artifact compatibility, bump on any change to modelFile
const modelVersion = 1

// modelFile is the on-disk shape of a fitted pipeline
type modelFile struct {
	Version int
	MinN    int
	MaxN    int
	Vocab   map[string]int
	IDF     []float64
	Layers  []netLayer
}

// Save persists the fitted pipeline to path. The artifact is written to a
// temp file first and renamed, a crash can't leave a partial artifact behind.
func (p *Pipeline) Save(path string) error {
	// temp file in the target dir, rename never crosses filesystems
	tmp, err := fileutils.TempFileName(filepath.Dir(path), "mailsift-model")
	if err != nil {
		return fmt.Errorf("can't make temp file name: %w", err)
	}

	fh, err := os.Create(tmp) //nolint:gosec // temp file name is generated
	if err != nil {
		return fmt.Errorf("can't create %s: %w", tmp, err)
	}

	mf := modelFile{
		Version: modelVersion,
		MinN:    p.vec.MinN,
		MaxN:    p.vec.MaxN,
		Vocab:   p.vec.Vocab,
		IDF:     p.vec.IDF,
		Layers:  p.net.Layers,
	}
	if err := gob.NewEncoder(fh).Encode(mf); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("can't encode model: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("can't close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("can't rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// Load restores a pipeline from an artifact file. Any parse or version
// mismatch is returned as an error, the caller decides whether to fall back.
func Load(path string) (*Pipeline, error) {
	fh, err := os.Open(path) //nolint:gosec // path is controlled by the app
	if err != nil {
		return nil, fmt.Errorf("can't open model %s: %w", path, err)
	}
	defer fh.Close()

	var mf modelFile
	if err := gob.NewDecoder(fh).Decode(&mf); err != nil {
		return nil, fmt.Errorf("can't decode model %s: %w", path, err)
	}
	if mf.Version != modelVersion {
		return nil, fmt.Errorf("model %s has version %d, want %d", path, mf.Version, modelVersion)
	}
	if len(mf.Layers) == 0 || len(mf.Vocab) != len(mf.IDF) {
		return nil, fmt.Errorf("model %s is malformed", path)
	}

	return &Pipeline{
		vec: &vectorizer{Vocab: mf.Vocab, IDF: mf.IDF, MinN: mf.MinN, MaxN: mf.MaxN},
		net: &network{Layers: mf.Layers},
	}, nil
}
