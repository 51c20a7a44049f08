package domain

// Report generation labels, newest first.
const (
	GenerationCurrent       = "current"
	GenerationCurrentEntity = "current_entity"
	GenerationLegacy        = "legacy"
	GenerationFallback      = "fallback"
)

// DateLayout is the wire format for report week bounds.
const DateLayout = "2006-01-02"

// CanonicalReport is the single normalized weekly report shape every storage
// generation is mapped into. Fields a generation cannot populate stay nil/empty.
type CanonicalReport struct {
	Generation               string              `json:"generation,omitempty"`
	ArtistName               string              `json:"artist_name"`
	WeekStart                string              `json:"week_start,omitempty"`
	WeekEnd                  string              `json:"week_end,omitempty"`
	Summary                  *string             `json:"summary,omitempty"`
	Highlights               []Highlight         `json:"highlights,omitempty"`
	FanSentiment             *string             `json:"fan_sentiment,omitempty"`
	Demographics             *Demographics       `json:"demographics,omitempty"`
	PlatformMetricsBySection []SectionMetrics    `json:"platform_metrics_by_section,omitempty"`
	Charts                   []ChartEntry        `json:"charts,omitempty"`
	TopVideos                []Video             `json:"top_videos,omitempty"`
	VideoTotals              *VideoTotals        `json:"video_totals,omitempty"`
	Playlists                []PlaylistPlacement `json:"playlists,omitempty"`
	Press                    []PressMention      `json:"press,omitempty"`
	Recommendations          []string            `json:"recommendations,omitempty"`
}

// HasContent reports whether any content field is populated. Identity fields
// (artist name, week bounds, generation) do not count.
func (r *CanonicalReport) HasContent() bool {
	if r == nil {
		return false
	}

	return r.Summary != nil ||
		len(r.Highlights) > 0 ||
		r.FanSentiment != nil ||
		r.Demographics != nil ||
		len(r.PlatformMetricsBySection) > 0 ||
		len(r.Charts) > 0 ||
		len(r.TopVideos) > 0 ||
		r.VideoTotals != nil ||
		len(r.Playlists) > 0 ||
		len(r.Press) > 0 ||
		len(r.Recommendations) > 0
}

type Highlight struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

type SectionMetrics struct {
	Section  string             `json:"section"`
	Platform string             `json:"platform,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Note     string             `json:"note,omitempty"`
}

type ChartEntry struct {
	Chart    string `json:"chart"`
	Country  string `json:"country,omitempty"`
	Position int    `json:"position,omitempty"`
	Title    string `json:"title,omitempty"`
	Movement int    `json:"movement,omitempty"`
}

type Video struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Views int64  `json:"views,omitempty"`
	Likes int64  `json:"likes,omitempty"`
}

// VideoTotals aggregates music-video performance for the week.
type VideoTotals struct {
	Views    *int64 `json:"views,omitempty"`
	Likes    *int64 `json:"likes,omitempty"`
	Comments *int64 `json:"comments,omitempty"`
	Videos   *int64 `json:"videos,omitempty"`
}

type PlaylistPlacement struct {
	Playlist  string `json:"playlist"`
	Platform  string `json:"platform,omitempty"`
	Track     string `json:"track,omitempty"`
	Followers int64  `json:"followers,omitempty"`
}

type PressMention struct {
	Outlet   string `json:"outlet,omitempty"`
	Headline string `json:"headline"`
	URL      string `json:"url,omitempty"`
}

// Demographics groups audience buckets by kind.
type Demographics struct {
	Age       []DemographicBucket `json:"age,omitempty"`
	Gender    []DemographicBucket `json:"gender,omitempty"`
	Countries []DemographicBucket `json:"countries,omitempty"`
	Cities    []DemographicBucket `json:"cities,omitempty"`
}

// IsEmpty reports whether no bucket is set.
func (d *Demographics) IsEmpty() bool {
	return d == nil || len(d.Age)+len(d.Gender)+len(d.Countries)+len(d.Cities) == 0
}

type DemographicBucket struct {
	Label string  `json:"label"`
	Share float64 `json:"share"`
}

// RawSection is one section/category row as fetched from any generation,
// before normalization. Position is the row's declared order field.
type RawSection struct {
	Key      string
	Position int
	Payload  []byte
}

// Artist is a row from the current-generation artist registry.
type Artist struct {
	ID   string
	Name string
	Slug string
}

// Entity is an artist, band or account tracked by the metrics pipeline.
type Entity struct {
	ID   string
	Name string
	Slug string
	Kind string
}

// ReportRow is a current-generation report header.
type ReportRow struct {
	ID        string
	ArtistID  string
	WeekStart string
	WeekEnd   string
}

// EntityReportItems is the flat item set for one entity week.
type EntityReportItems struct {
	WeekStart string
	WeekEnd   string
	Items     []RawSection
}

// LegacyReport is a row from the flat legacy weekly report table.
type LegacyReport struct {
	ArtistSlug      string
	ArtistName      string
	WeekStart       string
	WeekEnd         string
	Summary         string
	FanSentiment    string
	Recommendations string
}

// DemographicRow is one stored audience bucket.
type DemographicRow struct {
	BucketType string
	Label      string
	Share      float64
}
