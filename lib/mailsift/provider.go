package mailsift

import (
	"fmt"
	"log"
	"sync"

	"github.com/go-pkgz/fileutils"
)

// model source labels returned by Resolve
const (
	SourceArtifact = "trained artifact"
	SourceFallback = "builtin demo model"
)

// Provider resolves a usable pipeline: the persisted artifact if it loads,
// the fallback fitted from the seed corpus otherwise. Resolution happens at
// most once per process, repeated and concurrent calls get the same instance.
type Provider struct {
	ArtifactPath    string   // artifact location, empty disables loading
	PersistFallback bool     // save the synthesized fallback to ArtifactPath
	Samples         []Sample // fallback corpus, SeedSamples if empty

	once     sync.Once
	pipeline *Pipeline
	source   string
}

// loadResult is the outcome of the artifact loading step, either a pipeline
// or the reason it can't be used.
type loadResult struct {
	pipeline *Pipeline
	err      error
}

// Resolve returns the pipeline and a label describing where it came from.
// Loading failures never propagate, they downgrade to the fallback fit.
func (p *Provider) Resolve() (*Pipeline, string) {
	p.once.Do(func() {
		res := p.loadArtifact()
		if res.err == nil {
			p.pipeline, p.source = res.pipeline, fmt.Sprintf("%s (%s)", SourceArtifact, p.ArtifactPath)
			log.Printf("[INFO] model loaded from %s", p.ArtifactPath)
			return
		}
		log.Printf("[WARN] can't use model artifact, falling back to demo model: %v", res.err)

		samples := p.Samples
		if len(samples) == 0 {
			samples = SeedSamples()
		}
		p.pipeline, p.source = Fit(samples), SourceFallback
		log.Printf("[INFO] fallback model fitted on %d samples", len(samples))

		if p.PersistFallback && p.ArtifactPath != "" {
			if err := p.pipeline.Save(p.ArtifactPath); err != nil {
				log.Printf("[WARN] can't persist fallback model: %v", err)
				return
			}
			log.Printf("[INFO] fallback model persisted to %s", p.ArtifactPath)
		}
	})
	return p.pipeline, p.source
}

func (p *Provider) loadArtifact() loadResult {
	if p.ArtifactPath == "" {
		return loadResult{err: fmt.Errorf("no artifact path configured")}
	}
	if !fileutils.IsFile(p.ArtifactPath) {
		return loadResult{err: fmt.Errorf("artifact %s not found", p.ArtifactPath)}
	}
	pipeline, err := Load(p.ArtifactPath)
	if err != nil {
		return loadResult{err: err}
	}
	return loadResult{pipeline: pipeline}
}
