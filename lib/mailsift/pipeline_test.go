package mailsift

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fallbackOnce sync.Once
	fallback     *Pipeline
)

// fallbackPipeline fits the seed corpus once per test binary, fitting is the
// expensive part of these tests and the result is immutable anyway.
func fallbackPipeline() *Pipeline {
	fallbackOnce.Do(func() { fallback = Fit(SeedSamples()) })
	return fallback
}

func TestPipeline_FitsSeedCorpus(t *testing.T) {
	p := fallbackPipeline()
	for _, s := range SeedSamples() {
		prob := p.Score(s.Text)
		assert.GreaterOrEqual(t, prob, 0.0)
		assert.LessOrEqual(t, prob, 1.0)
		assert.Equal(t, s.Spam, prob >= 0.5, "sample %q, prob %.3f", s.Text, prob)
	}
}

func TestPipeline_ScoreExamples(t *testing.T) {
	tests := []struct {
		name string
		text string
		spam bool
	}{
		{"seed spam example", "Chúc mừng trúng iPhone 15, xác nhận tại đây", true},
		{"seed ham example", "Lịch họp dự án lúc 9h sáng mai", false},
	}

	p := fallbackPipeline()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prob := p.Score(tt.text)
			t.Logf("probability: %.3f", prob)
			assert.Equal(t, tt.spam, prob >= 0.5)
		})
	}
}

func TestPipeline_ScoreRange(t *testing.T) {
	p := fallbackPipeline()
	inputs := []string{
		"",
		"   ",
		"x",
		"some random english text with no overlap at all",
		"Chúc mừng trúng thưởng, bấm link ngay",
		"\x00\x01\x02",
	}
	for _, inp := range inputs {
		prob := p.Score(inp)
		assert.GreaterOrEqual(t, prob, 0.0, "input %q", inp)
		assert.LessOrEqual(t, prob, 1.0, "input %q", inp)
	}
}

func TestPipeline_ScoreEmptyNoPanic(t *testing.T) {
	p := fallbackPipeline()
	assert.NotPanics(t, func() { p.Score("") })
}

func TestPipeline_ScoreDeterministic(t *testing.T) {
	p := fallbackPipeline()
	text := "Nhận quà tặng khủng, bấm link để nhận thưởng ngay"

	first := p.Score(text)
	for i := 0; i < 10; i++ {
		assert.InDelta(t, first, p.Score(text), 1e-12)
	}
}

func TestPipeline_FitDeterministic(t *testing.T) {
	p1 := Fit(SeedSamples()[:4])
	p2 := Fit(SeedSamples()[:4])
	text := "vay tiền nhanh"
	assert.InDelta(t, p1.Score(text), p2.Score(text), 1e-12)
}

func TestPipeline_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")

	p := fallbackPipeline()
	require.NoError(t, p.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	for _, s := range SeedSamples() {
		assert.InDelta(t, p.Score(s.Text), loaded.Score(s.Text), 1e-12, "sample %q", s.Text)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Error(t, err)
}

func TestLoad_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")

	fh, err := os.Create(path)
	require.NoError(t, err)
	mf := modelFile{Version: 99, MinN: 3, MaxN: 5, Vocab: map[string]int{"abc": 0}, IDF: []float64{1},
		Layers: []netLayer{{W: [][]float64{{0}}, B: []float64{0}}}}
	require.NoError(t, gob.NewEncoder(fh).Encode(mf))
	require.NoError(t, fh.Close())

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a model at all"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_NoPartialArtifactOnOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	p := fallbackPipeline()

	require.NoError(t, p.Save(path))
	require.NoError(t, p.Save(path), "overwrite via rename")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, p.Score("test"), loaded.Score("test"), 1e-12)
}
