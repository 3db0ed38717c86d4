package miner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/pkg/cache"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"github.com/kumarabd/ingestion-plane/miner/pkg/matcher"
	"github.com/kumarabd/ingestion-plane/miner/pkg/merge"
	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
	"github.com/kumarabd/ingestion-plane/miner/pkg/trie"
	"github.com/kumarabd/ingestion-plane/miner/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kumarabd/ingestion-plane/miner/pkg/miner"

// Service owns one template trie and assigns templates to lines.
// It serializes every mutation of the trie; searches share a read lock.
type Service struct {
	mu     sync.RWMutex
	nextID int

	config    *Config
	log       *logger.Handler
	tok       *token.Tokenizer
	engine    *merge.Engine
	matcher   *matcher.Matcher
	trieCfg   *trie.Config
	trie      *trie.Trie
	generator Generator
	heuristic *HeuristicGenerator
	metrics   Metrics
	tracer    trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithTokenizer sets the tokenizer shared by every component
func WithTokenizer(tok *token.Tokenizer) Option {
	return func(s *Service) {
		s.tok = tok
	}
}

// WithEngine sets the merge engine
func WithEngine(e *merge.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithMatcher sets the matcher used to validate generated templates
func WithMatcher(m *matcher.Matcher) Option {
	return func(s *Service) {
		s.matcher = m
	}
}

// WithTrieConfig sets the trie configuration
func WithTrieConfig(cfg *trie.Config) Option {
	return func(s *Service) {
		s.trieCfg = cfg
	}
}

// WithGenerator plugs in an external template generator. The heuristic
// generator remains the fallback.
func WithGenerator(g Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for batch and update spans
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New creates a miner service and seeds it with the configured templates
func New(cfg *Config, log *logger.Handler, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Service{config: cfg, log: log}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		l, err := logger.New("miner", logger.Options{Format: logger.JSONLogFormat})
		if err != nil {
			return nil, fmt.Errorf("miner: logger: %w", err)
		}
		s.log = l
	}
	if s.tok == nil {
		s.tok = token.Default()
	}
	if s.engine == nil {
		e, err := merge.New(nil, s.tok)
		if err != nil {
			return nil, fmt.Errorf("miner: merge engine: %w", err)
		}
		s.engine = e
	}
	if s.matcher == nil {
		c, err := cache.New(nil)
		if err != nil {
			return nil, fmt.Errorf("miner: cache: %w", err)
		}
		s.matcher = matcher.New(s.tok, c)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	heuristic, err := NewHeuristicGenerator(nil, s.engine)
	if err != nil {
		return nil, fmt.Errorf("miner: heuristic generator: %w", err)
	}
	s.heuristic = heuristic

	s.trie = trie.New(s.tok,
		trie.WithConfig(s.trieCfg),
		trie.WithMerger(&observedMerger{engine: s.engine, metrics: s.metrics}),
	)

	if err := s.Seed(cfg.SeedTemplates); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed inserts known templates with no attributed lines
func (s *Service) Seed(templates []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range templates {
		if _, err := s.trie.Insert(t); err != nil {
			return fmt.Errorf("miner: seed: %w", err)
		}
	}
	if len(templates) > 0 {
		s.log.Info().Int("templates", len(templates)).Msg("trie seeded")
	}
	s.metrics.SetTemplatesLive(s.trie.Len())
	return nil
}

// Process assigns a template to every line, in order. Lines are searched first;
// a line that matches nothing gets a generated template that is merged into the
// trie. The returned results are 1:1 with lines.
func (s *Service) Process(ctx context.Context, lines []logtypes.Line) ([]types.TemplateResult, error) {
	ctx, span := s.tracer.Start(ctx, "miner.Process", trace.WithAttributes(attribute.Int("lines", len(lines))))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]types.TemplateResult, 0, len(lines))
	for i, line := range lines {
		r, err := s.processLine(ctx, int32(i), line)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return results, err
		}
		results = append(results, r)
	}
	s.metrics.SetTemplatesLive(s.trie.Len())
	return results, nil
}

func (s *Service) processLine(ctx context.Context, index int32, line logtypes.Line) (types.TemplateResult, error) {
	id := line.ID
	if id <= 0 {
		s.nextID++
		id = s.nextID
	} else if id > s.nextID {
		s.nextID = id
	}
	result := types.TemplateResult{RecordIndex: index, LineID: id}

	if len(s.tok.Split(line.Message)) == 0 {
		s.metrics.IncLines("empty")
		return result, nil
	}

	start := time.Now()
	found := s.trie.Probe(line.Message)
	s.metrics.ObserveSearchLatency(time.Since(start), found.Matched)
	if found.Exhausted {
		s.log.Debug().Int("steps", found.Steps).Msg("search budget exhausted")
	}

	if found.Matched {
		if err := s.trie.Attribute(found.Node, id); err != nil {
			return result, fmt.Errorf("miner: attribute line %d: %w", id, err)
		}
		s.metrics.IncLines("matched")
		return s.describe(result, found.Node.Template(), types.ProvenanceCache), nil
	}

	template, provenance := s.generate(ctx, line.Message)
	out, err := s.update(ctx, template, found.Node, id)
	if err != nil {
		return result, err
	}

	result = s.describe(result, out.Template, provenance)
	result.Merged = out.Merged()
	result.Absorbed = out.Absorbed
	if out.Merged() {
		s.metrics.IncLines("merged")
	} else {
		s.metrics.IncLines("new")
	}
	return result, nil
}

func (s *Service) update(ctx context.Context, template string, anchor *trie.Node, id int) (trie.Outcome, error) {
	_, span := s.tracer.Start(ctx, "miner.Update", trace.WithAttributes(
		attribute.String("template", template),
		attribute.Int("line_id", id),
	))
	defer span.End()

	out, err := s.trie.Update(template, anchor, id)
	if err != nil {
		if errors.Is(err, trie.ErrNotFound) {
			s.log.Error().Err(err).Str("template", template).Msg("merge referenced a template that is not live")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, fmt.Errorf("miner: update line %d: %w", id, err)
	}

	if out.Merged() {
		for _, old := range out.Absorbed {
			s.matcher.Forget(old)
		}
		span.SetAttributes(attribute.Int("absorbed", len(out.Absorbed)))
		s.log.Info().
			Str("template", out.Template).
			Strs("absorbed", out.Absorbed).
			Int("lines", len(out.LineIDs)).
			Msg("templates merged")
	} else {
		s.log.Debug().Str("template", out.Template).Msg("template admitted")
	}
	return out, nil
}

// generate asks the configured generator for a template and validates it against
// line, falling back to the heuristic generator when that fails.
func (s *Service) generate(ctx context.Context, line string) (string, types.Provenance) {
	heuristic := func() string {
		t, _ := s.heuristic.Generate(ctx, line)
		if s.config.ValidateTemplates {
			if repaired, ok := s.matcher.Repair(t, line); ok {
				return repaired
			}
		}
		return t
	}

	if s.generator == nil {
		return heuristic(), types.ProvenanceHeuristic
	}

	template, err := s.generator.Generate(ctx, line)
	if err == nil && len(s.tok.Split(template)) == 0 {
		err = ErrNoTemplate
	}
	if err == nil && s.config.ValidateTemplates {
		repaired, ok := s.matcher.Repair(template, line)
		if !ok {
			err = fmt.Errorf("template %q does not describe the line", template)
		}
		template = repaired
	}
	if err != nil {
		s.metrics.IncGeneratorFallbacks()
		s.log.Warn().Err(err).Str("line", line).Msg("generator failed, using heuristic template")
		return heuristic(), types.ProvenanceFallback
	}
	return template, types.ProvenanceGenerated
}

func (s *Service) describe(r types.TemplateResult, template string, p types.Provenance) types.TemplateResult {
	r.TemplateID = trie.TemplateID(template)
	r.Template = template
	r.Regex = matcher.Expression(s.tok, template)
	r.Provenance = p
	return r
}

// Search matches line without mutating the trie
func (s *Service) Search(line string) (template string, matched bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	node, ok := s.trie.Search(line)
	s.metrics.ObserveSearchLatency(time.Since(start), ok)
	if !ok {
		return "", false
	}
	return node.Template(), true
}

// Insert admits template directly, without merging
func (s *Service) Insert(template string, lineIDs ...int) (trie.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.trie.Insert(template, lineIDs...)
	if err != nil {
		return trie.Entry{}, err
	}
	for _, id := range lineIDs {
		if id > s.nextID {
			s.nextID = id
		}
	}
	s.metrics.SetTemplatesLive(s.trie.Len())
	return trie.Entry{ID: trie.TemplateID(node.Template()), Template: node.Template(), LineIDs: node.LineIDs()}, nil
}

// Delete removes template and returns the lines that were attributed to it
func (s *Service) Delete(template string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.trie.Delete(template)
	if err != nil {
		return nil, err
	}
	s.matcher.Forget(template)
	s.metrics.SetTemplatesLive(s.trie.Len())
	return ids, nil
}

// Len returns the number of live templates
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trie.Len()
}

// Templates exports every live template in trie order
func (s *Service) Templates() []trie.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trie.Templates()
}

// Assignments maps every attributed line to its template. Placeholders are
// rendered as the wildcard token.
func (s *Service) Assignments() map[int]types.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]types.Assignment)
	for _, e := range s.trie.Templates() {
		a := types.Assignment{TemplateID: e.ID, Template: s.tok.Canonical(e.Template)}
		for _, id := range e.LineIDs {
			out[id] = a
		}
	}
	return out
}

// Check verifies the trie's structural invariants
func (s *Service) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trie.Check()
}

// observedMerger counts the merge engine's decisions
type observedMerger struct {
	engine  *merge.Engine
	metrics Metrics
}

func (m *observedMerger) Attempt(template string) bool {
	return m.engine.Attempt(template)
}

func (m *observedMerger) Merge(similarity float64, group []string, template string) string {
	merged, reason := m.engine.Evaluate(similarity, group, template)
	if reason != merge.Accepted {
		m.metrics.IncMergeRejection(string(reason))
		return ""
	}
	m.metrics.IncMerges()
	return merged
}
