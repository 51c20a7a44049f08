package report

import (
	"cmp"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
)

const (
	skipUnknownKey  = "unknown_key"
	skipUndecodable = "undecodable"
	skipEmpty       = "empty"
)

// Normalizer maps raw sections of one storage generation onto the canonical
// report shape using a vocabulary table.
type Normalizer struct {
	vocab  Vocabulary
	logger *zerolog.Logger
}

// NewNormalizer creates a normalizer for vocab.
func NewNormalizer(vocab Vocabulary, logger *zerolog.Logger) *Normalizer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Normalizer{vocab: vocab, logger: logger}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Normalize maps one section into a partial report. It returns false for keys
// outside the vocabulary and for payloads that carry nothing usable.
func (n *Normalizer) Normalize(key string, payload []byte) (*domain.CanonicalReport, bool) {
	part, _, ok := n.normalize(key, payload)

	return part, ok
}

func (n *Normalizer) normalize(key string, payload []byte) (*domain.CanonicalReport, Rule, bool) {
	rule, known := n.vocab.Lookup(key)
	if !known {
		observability.ReportSectionsSkipped.WithLabelValues(skipUnknownKey).Inc()
		n.logger.Debug().Str("section", key).Msg("ignoring unknown report section")

		return nil, Rule{}, false
	}

	part, err := decodeField(rule.Field, payload)
	if err != nil {
		observability.ReportSectionsSkipped.WithLabelValues(skipUndecodable).Inc()
		n.logger.Warn().Err(err).Str("section", key).Msg("ignoring undecodable report section")

		return nil, Rule{}, false
	}

	if !part.HasContent() {
		observability.ReportSectionsSkipped.WithLabelValues(skipEmpty).Inc()

		return nil, Rule{}, false
	}

	return part, rule, true
}

// Assemble orders sections by declared position, keeping fetch order for
// ties, and folds their partial reports. The result is never nil.
func (n *Normalizer) Assemble(sections []domain.RawSection) *domain.CanonicalReport {
	ordered := slices.Clone(sections)
	slices.SortStableFunc(ordered, func(a, b domain.RawSection) int {
		return cmp.Compare(a.Position, b.Position)
	})

	out := &domain.CanonicalReport{}

	for _, s := range ordered {
		part, rule, ok := n.normalize(s.Key, s.Payload)
		if !ok {
			continue
		}

		apply(out, part, rule)
	}

	return out
}

func decodeField(field Field, payload []byte) (*domain.CanonicalReport, error) {
	part := &domain.CanonicalReport{}

	var err error

	switch field {
	case FieldSummary:
		if s, ok := decodeText(payload); ok {
			part.Summary = &s
		}
	case FieldFanSentiment:
		if s, ok := decodeText(payload); ok {
			part.FanSentiment = &s
		}
	case FieldHighlights:
		part.Highlights, err = decodeList(payload, decodeHighlight)
	case FieldCharts:
		part.Charts, err = decodeList(payload, decodeChart)
	case FieldTopVideos:
		part.TopVideos, err = decodeList(payload, decodeVideo)
	case FieldPlaylists:
		part.Playlists, err = decodeList(payload, decodePlaylist)
	case FieldPress:
		part.Press, err = decodeList(payload, decodePress)
	case FieldPlatformMetrics:
		part.PlatformMetricsBySection, err = decodeList(payload, decodePlatformMetrics)
	case FieldVideoTotals:
		part.VideoTotals, err = decodeVideoTotals(payload)
	case FieldDemographics:
		part.Demographics, err = decodeDemographics(payload)
	case FieldRecommendations:
		part.Recommendations = decodeStrings(payload)
	}

	if err != nil {
		return nil, err
	}

	return part, nil
}

// apply folds part into dst for the field named by rule.
func apply(dst, part *domain.CanonicalReport, rule Rule) {
	switch rule.Field {
	case FieldSummary:
		dst.Summary = foldText(dst.Summary, part.Summary, rule.Strategy)
	case FieldFanSentiment:
		dst.FanSentiment = foldText(dst.FanSentiment, part.FanSentiment, rule.Strategy)
	case FieldHighlights:
		dst.Highlights = foldList(dst.Highlights, part.Highlights, rule.Strategy)
	case FieldCharts:
		dst.Charts = foldList(dst.Charts, part.Charts, rule.Strategy)
	case FieldTopVideos:
		dst.TopVideos = foldList(dst.TopVideos, part.TopVideos, rule.Strategy)
	case FieldPlaylists:
		dst.Playlists = foldList(dst.Playlists, part.Playlists, rule.Strategy)
	case FieldPress:
		dst.Press = foldList(dst.Press, part.Press, rule.Strategy)
	case FieldPlatformMetrics:
		dst.PlatformMetricsBySection = foldList(dst.PlatformMetricsBySection, part.PlatformMetricsBySection, rule.Strategy)
	case FieldRecommendations:
		dst.Recommendations = foldList(dst.Recommendations, part.Recommendations, rule.Strategy)
	case FieldVideoTotals:
		if part.VideoTotals != nil {
			dst.VideoTotals = part.VideoTotals
		}
	case FieldDemographics:
		if !part.Demographics.IsEmpty() {
			dst.Demographics = part.Demographics
		}
	}
}

func foldText(cur, next *string, s Strategy) *string {
	if next == nil {
		return cur
	}

	if cur == nil || s != ConcatText {
		v := *next

		return &v
	}

	joined := *cur + TextSeparator + *next

	return &joined
}

func foldList[T any](cur, next []T, s Strategy) []T {
	if len(next) == 0 {
		return cur
	}

	if s == Replace {
		return slices.Clone(next)
	}

	return append(cur, next...)
}

func sortDemographics(d *domain.Demographics) {
	for _, buckets := range [][]domain.DemographicBucket{d.Age, d.Gender, d.Countries, d.Cities} {
		sort.SliceStable(buckets, func(i, j int) bool {
			if buckets[i].Share != buckets[j].Share {
				return buckets[i].Share > buckets[j].Share
			}

			return buckets[i].Label < buckets[j].Label
		})
	}
}
