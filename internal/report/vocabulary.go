package report

// Field names a canonical report field a section can populate.
type Field string

const (
	FieldSummary         Field = "summary"
	FieldHighlights      Field = "highlights"
	FieldFanSentiment    Field = "fan_sentiment"
	FieldDemographics    Field = "demographics"
	FieldPlatformMetrics Field = "platform_metrics"
	FieldCharts          Field = "charts"
	FieldTopVideos       Field = "top_videos"
	FieldVideoTotals     Field = "video_totals"
	FieldPlaylists       Field = "playlists"
	FieldPress           Field = "press"
	FieldRecommendations Field = "recommendations"
)

// Strategy says how repeated sections for the same field are folded.
type Strategy int

const (
	// AppendList appends list items in section order.
	AppendList Strategy = iota
	// ConcatText joins text values with TextSeparator.
	ConcatText
	// Replace keeps the last non-empty value.
	Replace
)

// TextSeparator joins repeated text sections.
const TextSeparator = "\n\n"

func (s Strategy) String() string {
	switch s {
	case AppendList:
		return "append_list"
	case ConcatText:
		return "concat_text"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// Rule maps one section key onto a canonical field.
type Rule struct {
	Field    Field
	Strategy Strategy
}

// Vocabulary maps lowercase section keys to rules. Keys absent from the
// vocabulary are ignored.
type Vocabulary map[string]Rule

// Lookup matches key case-insensitively after trimming.
func (v Vocabulary) Lookup(key string) (Rule, bool) {
	rule, ok := v[normalizeKey(key)]

	return rule, ok
}

// CurrentVocabulary covers report_sections keys, including the Spanish
// aliases the upstream editors use.
var CurrentVocabulary = Vocabulary{
	"summary":          {FieldSummary, ConcatText},
	"resumen":          {FieldSummary, ConcatText},
	"highlights":       {FieldHighlights, AppendList},
	"highlight":        {FieldHighlights, AppendList},
	"destacados":       {FieldHighlights, AppendList},
	"sentiment":        {FieldFanSentiment, ConcatText},
	"fan_sentiment":    {FieldFanSentiment, ConcatText},
	"sentimiento":      {FieldFanSentiment, ConcatText},
	"demographics":     {FieldDemographics, Replace},
	"platform_metrics": {FieldPlatformMetrics, AppendList},
	"dsp_metrics":      {FieldPlatformMetrics, AppendList},
	"charts":           {FieldCharts, AppendList},
	"top_videos":       {FieldTopVideos, AppendList},
	"videos":           {FieldTopVideos, AppendList},
	"mv_totales":       {FieldVideoTotals, Replace},
	"video_totals":     {FieldVideoTotals, Replace},
	"playlists":        {FieldPlaylists, AppendList},
	"press":            {FieldPress, AppendList},
	"prensa":           {FieldPress, AppendList},
	"recommendations":  {FieldRecommendations, AppendList},
	"recomendaciones":  {FieldRecommendations, AppendList},
}

// EntityItemsVocabulary covers entity_report_items categories, which are
// singular and one item per row.
var EntityItemsVocabulary = Vocabulary{
	"summary":         {FieldSummary, ConcatText},
	"highlight":       {FieldHighlights, AppendList},
	"highlights":      {FieldHighlights, AppendList},
	"sentiment":       {FieldFanSentiment, ConcatText},
	"fan_sentiment":   {FieldFanSentiment, ConcatText},
	"platform_metric": {FieldPlatformMetrics, AppendList},
	"chart":           {FieldCharts, AppendList},
	"chart_entry":     {FieldCharts, AppendList},
	"top_video":       {FieldTopVideos, AppendList},
	"video":           {FieldTopVideos, AppendList},
	"mv_totales":      {FieldVideoTotals, Replace},
	"playlist":        {FieldPlaylists, AppendList},
	"press":           {FieldPress, AppendList},
	"press_mention":   {FieldPress, AppendList},
	"recommendation":  {FieldRecommendations, AppendList},
}

// LegacyVocabulary covers the few columns of weekly_reports_legacy.
var LegacyVocabulary = Vocabulary{
	"summary":         {FieldSummary, Replace},
	"fan_sentiment":   {FieldFanSentiment, Replace},
	"recommendations": {FieldRecommendations, AppendList},
}
