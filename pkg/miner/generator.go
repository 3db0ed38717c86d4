package miner

import (
	"context"
	"errors"

	"github.com/kumarabd/ingestion-plane/miner/pkg/ingest"
	"github.com/kumarabd/ingestion-plane/miner/pkg/merge"
)

// ErrNoTemplate is returned by a generator that could not derive a usable template
var ErrNoTemplate = errors.New("no template for line")

// Generator produces a candidate template for a line that matched nothing
type Generator interface {
	Generate(ctx context.Context, line string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface
type GeneratorFunc func(ctx context.Context, line string) (string, error)

// Generate calls f(ctx, line)
func (f GeneratorFunc) Generate(ctx context.Context, line string) (string, error) {
	return f(ctx, line)
}

// HeuristicGenerator derives templates locally: masking rules replace variable
// fragments with placeholders and the result is post-processed like any merge.
type HeuristicGenerator struct {
	masker *ingest.Masker
	engine *merge.Engine
}

// NewHeuristicGenerator creates a heuristic generator. Nil arguments select the defaults.
func NewHeuristicGenerator(masker *ingest.Masker, engine *merge.Engine) (*HeuristicGenerator, error) {
	if masker == nil {
		masker = ingest.NewMasker()
	}
	if engine == nil {
		e, err := merge.New(nil, nil)
		if err != nil {
			return nil, err
		}
		engine = e
	}
	return &HeuristicGenerator{masker: masker, engine: engine}, nil
}

// Generate masks line and post-processes the result. A line with no static
// content left is returned as-is so it still gets a template of its own.
func (g *HeuristicGenerator) Generate(_ context.Context, line string) (string, error) {
	if line == "" {
		return "", ErrNoTemplate
	}
	masked, _ := g.masker.Mask(line)
	template, ok := g.engine.PostProcess(masked)
	if !ok || template == "" {
		return line, nil
	}
	return template, nil
}
