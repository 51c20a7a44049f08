// Package report resolves one canonical weekly report per artist by trying the
// storage generations newest first and normalizing whichever answers.
package report

import (
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
	"github.com/lueurxax/artist-pulse/internal/platform/textutil"
)

const generationNone = "none"

// Query is a validated resolution request.
type Query struct {
	Term    string
	Slug    string
	WeekEnd string
}

// NewQuery validates the artist term and normalizes the optional week marker.
func NewQuery(term, weekEnd string) (Query, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Query{}, fmt.Errorf("artist: %w", coreerrors.ErrInvalidInput)
	}

	week, err := ParseWeekEnd(weekEnd)
	if err != nil {
		return Query{}, err
	}

	return Query{Term: term, Slug: textutil.Slugify(term), WeekEnd: week}, nil
}

// Attempt is the outcome of trying one generation: NotFound when Report is nil,
// Found otherwise. SubjectMatched records that the artist or entity itself was
// found even if no report was.
type Attempt struct {
	Generation     string
	Report         *domain.CanonicalReport
	SubjectMatched bool
	SubjectSlug    string
}

// Found reports whether the attempt produced a report.
func (a Attempt) Found() bool {
	return a.Report != nil
}

// Generation tries one storage generation. prior holds the attempts of the
// newer generations, in order.
type Generation interface {
	Name() string
	Try(ctx context.Context, q Query, prior []Attempt) (Attempt, error)
}

// Resolver folds over its generations and returns the first report found.
type Resolver struct {
	generations []Generation
	fallback    *domain.CanonicalReport
	logger      *zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFallback sets the static report returned when every generation misses.
func WithFallback(r *domain.CanonicalReport) Option {
	return func(res *Resolver) {
		res.fallback = r
	}
}

// WithGenerations replaces the default generation chain.
func WithGenerations(gens ...Generation) Option {
	return func(res *Resolver) {
		res.generations = gens
	}
}

// NewResolver builds the default chain: current, current-entity, legacy.
func NewResolver(repo ports.ReportRepository, logger *zerolog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	r := &Resolver{logger: logger}
	enricher := &demographicsEnricher{repo: repo, logger: logger}

	r.generations = []Generation{
		&currentGeneration{repo: repo, normalizer: NewNormalizer(CurrentVocabulary, logger), enricher: enricher},
		&currentEntityGeneration{repo: repo, normalizer: NewNormalizer(EntityItemsVocabulary, logger), enricher: enricher},
		&legacyGeneration{repo: repo, normalizer: NewNormalizer(LegacyVocabulary, logger)},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the report for artistSlugOrID and the optional week end, or
// the fallback (possibly nil) when no generation has one. An unparseable week
// marker is treated as a miss.
func (r *Resolver) Resolve(ctx context.Context, artistSlugOrID, weekEnd string) *domain.CanonicalReport {
	q, err := NewQuery(artistSlugOrID, weekEnd)
	if err != nil {
		r.logger.Warn().Err(err).Str("artist", artistSlugOrID).Msg("invalid report query")

		return r.fallbackReport()
	}

	return r.ResolveQuery(ctx, q)
}

// ResolveQuery runs the chain for an already validated query.
func (r *Resolver) ResolveQuery(ctx context.Context, q Query) *domain.CanonicalReport {
	prior := make([]Attempt, 0, len(r.generations))

	for _, g := range r.generations {
		a := r.try(ctx, g, q, prior)
		prior = append(prior, a)

		if a.Found() {
			observability.ReportResolutions.WithLabelValues(g.Name()).Inc()
			r.logger.Debug().
				Str("artist", q.Term).
				Str("week_end", q.WeekEnd).
				Str("generation", g.Name()).
				Msg("report resolved")

			return a.Report
		}
	}

	if fb := r.fallbackReport(); fb != nil {
		observability.ReportResolutions.WithLabelValues(domain.GenerationFallback).Inc()

		return fb
	}

	observability.ReportResolutions.WithLabelValues(generationNone).Inc()

	return nil
}

// try runs one generation. Errors and empty reports both count as NotFound.
func (r *Resolver) try(ctx context.Context, g Generation, q Query, prior []Attempt) Attempt {
	a, err := g.Try(ctx, q, prior)
	if err != nil {
		observability.ReportGenerationErrors.WithLabelValues(g.Name()).Inc()
		r.logger.Warn().Err(err).Str("artist", q.Term).Str("generation", g.Name()).Msg("report generation failed, trying next")

		return Attempt{Generation: g.Name()}
	}

	a.Generation = g.Name()

	if a.Report != nil && !a.Report.HasContent() {
		a.Report = nil
	}

	if a.Report != nil {
		a.Report.Generation = g.Name()
	}

	return a
}

func (r *Resolver) fallbackReport() *domain.CanonicalReport {
	if r.fallback == nil {
		return nil
	}

	fb := *r.fallback
	fb.Generation = domain.GenerationFallback

	return &fb
}

// LoadFallback reads a static canonical report from a JSON file.
func LoadFallback(path string) (*domain.CanonicalReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback report: %w", err)
	}

	var rep domain.CanonicalReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode fallback report: %w", err)
	}

	return &rep, nil
}
