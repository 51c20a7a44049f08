package report

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/platform/textutil"
)

// flexInt accepts a JSON number or a numeric string such as "1,204" or "3.5".
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	v, ok := parseNumber(b)
	if !ok {
		return fmt.Errorf("integer %s: %w", b, coreerrors.ErrUnexpectedType)
	}

	*f = flexInt(v)

	return nil
}

func (f *flexInt) ptr() *int64 {
	if f == nil {
		return nil
	}

	v := int64(*f)

	return &v
}

// flexFloat accepts a JSON number or a numeric string, optionally suffixed with "%".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	v, ok := parseNumber(b)
	if !ok {
		return fmt.Errorf("number %s: %w", b, coreerrors.ErrUnexpectedType)
	}

	*f = flexFloat(v)

	return nil
}

func parseNumber(b []byte) (float64, bool) {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return 0, true
	}

	s = strings.Trim(s, `"`)
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}

func firstInt(values ...*flexInt) *flexInt {
	for _, v := range values {
		if v != nil {
			return v
		}
	}

	return nil
}

var textKeys = []string{"text", "content", "body", "summary", "value"}

// decodeText accepts a JSON string, an object carrying the text under one of
// textKeys, an array of either, or raw non-JSON text.
func decodeText(payload []byte) (string, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return "", false
	}

	var out string

	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &out); err != nil {
			out = string(trimmed)
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return rawText(trimmed)
		}

		for _, k := range textKeys {
			if raw, ok := obj[k]; ok {
				return decodeText(raw)
			}
		}

		return "", false
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return rawText(trimmed)
		}

		parts := make([]string, 0, len(items))

		for _, item := range items {
			if s, ok := decodeText(item); ok {
				parts = append(parts, s)
			}
		}

		out = strings.Join(parts, TextSeparator)
	default:
		if bytes.Equal(trimmed, []byte("null")) {
			return "", false
		}

		return rawText(trimmed)
	}

	out = textutil.StripTags(out)

	return out, out != ""
}

func rawText(b []byte) (string, bool) {
	s := textutil.StripTags(string(b))

	return s, s != ""
}

// decodeList accepts an array of elements or a single element.
func decodeList[T any](payload []byte, one func(json.RawMessage) (T, bool)) ([]T, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var elements []json.RawMessage

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
	} else {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("decode list element: %w", coreerrors.ErrUnexpectedType)
		}

		elements = []json.RawMessage{trimmed}
	}

	out := make([]T, 0, len(elements))

	for _, el := range elements {
		if v, ok := one(el); ok {
			out = append(out, v)
		}
	}

	return out, nil
}

func isJSONString(b json.RawMessage) bool {
	t := bytes.TrimSpace(b)

	return len(t) > 0 && t[0] == '"'
}

type highlightWire struct {
	Title       string `json:"title"`
	Headline    string `json:"headline"`
	Body        string `json:"body"`
	Text        string `json:"text"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Icon        string `json:"icon"`
	Emoji       string `json:"emoji"`
}

func decodeHighlight(el json.RawMessage) (domain.Highlight, bool) {
	if isJSONString(el) {
		body, ok := decodeText(el)

		return domain.Highlight{Body: body}, ok
	}

	var w highlightWire
	if err := json.Unmarshal(el, &w); err != nil {
		return domain.Highlight{}, false
	}

	h := domain.Highlight{
		Title: textutil.StripTags(firstNonEmpty(w.Title, w.Headline)),
		Body:  textutil.StripTags(firstNonEmpty(w.Body, w.Text, w.Description, w.Content)),
		Icon:  firstNonEmpty(w.Icon, w.Emoji),
	}

	return h, h.Title != "" || h.Body != ""
}

type chartWire struct {
	Chart    string   `json:"chart"`
	Name     string   `json:"name"`
	Country  string   `json:"country"`
	Position *flexInt `json:"position"`
	Rank     *flexInt `json:"rank"`
	Title    string   `json:"title"`
	Track    string   `json:"track"`
	Movement *flexInt `json:"movement"`
	Change   *flexInt `json:"change"`
}

func decodeChart(el json.RawMessage) (domain.ChartEntry, bool) {
	var w chartWire
	if err := json.Unmarshal(el, &w); err != nil {
		return domain.ChartEntry{}, false
	}

	c := domain.ChartEntry{
		Chart:   firstNonEmpty(w.Chart, w.Name),
		Country: strings.ToUpper(strings.TrimSpace(w.Country)),
		Title:   firstNonEmpty(w.Title, w.Track),
	}

	if p := firstInt(w.Position, w.Rank); p != nil {
		c.Position = int(*p)
	}

	if m := firstInt(w.Movement, w.Change); m != nil {
		c.Movement = int(*m)
	}

	return c, c.Chart != "" || c.Title != ""
}

type videoWire struct {
	Title string   `json:"title"`
	Name  string   `json:"name"`
	URL   string   `json:"url"`
	Link  string   `json:"link"`
	Views *flexInt `json:"views"`
	Likes *flexInt `json:"likes"`
}

func decodeVideo(el json.RawMessage) (domain.Video, bool) {
	var w videoWire
	if err := json.Unmarshal(el, &w); err != nil {
		return domain.Video{}, false
	}

	v := domain.Video{
		Title: textutil.StripTags(firstNonEmpty(w.Title, w.Name)),
		URL:   textutil.SafeURL(firstNonEmpty(w.URL, w.Link)),
	}

	if w.Views != nil {
		v.Views = int64(*w.Views)
	}

	if w.Likes != nil {
		v.Likes = int64(*w.Likes)
	}

	return v, v.Title != "" || v.URL != ""
}

type videoTotalsWire struct {
	Views       *flexInt `json:"views"`
	TotalViews  *flexInt `json:"total_views"`
	Vistas      *flexInt `json:"vistas"`
	Likes       *flexInt `json:"likes"`
	Comments    *flexInt `json:"comments"`
	Comentarios *flexInt `json:"comentarios"`
	Videos      *flexInt `json:"videos"`
	Count       *flexInt `json:"count"`
}

func decodeVideoTotals(payload []byte) (*domain.VideoTotals, error) {
	var w videoTotalsWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("decode video totals: %w", err)
	}

	t := &domain.VideoTotals{
		Views:    firstInt(w.Views, w.TotalViews, w.Vistas).ptr(),
		Likes:    w.Likes.ptr(),
		Comments: firstInt(w.Comments, w.Comentarios).ptr(),
		Videos:   firstInt(w.Videos, w.Count).ptr(),
	}

	if t.Views == nil && t.Likes == nil && t.Comments == nil && t.Videos == nil {
		return nil, nil
	}

	return t, nil
}

type playlistWire struct {
	Playlist  string   `json:"playlist"`
	Name      string   `json:"name"`
	Platform  string   `json:"platform"`
	Track     string   `json:"track"`
	Song      string   `json:"song"`
	Followers *flexInt `json:"followers"`
}

func decodePlaylist(el json.RawMessage) (domain.PlaylistPlacement, bool) {
	var w playlistWire
	if err := json.Unmarshal(el, &w); err != nil {
		return domain.PlaylistPlacement{}, false
	}

	p := domain.PlaylistPlacement{
		Playlist: firstNonEmpty(w.Playlist, w.Name),
		Platform: strings.ToLower(strings.TrimSpace(w.Platform)),
		Track:    firstNonEmpty(w.Track, w.Song),
	}

	if w.Followers != nil {
		p.Followers = int64(*w.Followers)
	}

	return p, p.Playlist != ""
}

type pressWire struct {
	Outlet   string `json:"outlet"`
	Source   string `json:"source"`
	Medio    string `json:"medio"`
	Headline string `json:"headline"`
	Title    string `json:"title"`
	Titular  string `json:"titular"`
	URL      string `json:"url"`
	Link     string `json:"link"`
}

func decodePress(el json.RawMessage) (domain.PressMention, bool) {
	if isJSONString(el) {
		headline, ok := decodeText(el)

		return domain.PressMention{Headline: headline}, ok
	}

	var w pressWire
	if err := json.Unmarshal(el, &w); err != nil {
		return domain.PressMention{}, false
	}

	p := domain.PressMention{
		Outlet:   firstNonEmpty(w.Outlet, w.Source, w.Medio),
		Headline: textutil.StripTags(firstNonEmpty(w.Headline, w.Title, w.Titular)),
		URL:      textutil.SafeURL(firstNonEmpty(w.URL, w.Link)),
	}

	return p, p.Headline != ""
}

var metricMetaKeys = map[string]bool{
	"section": true, "name": true, "title": true, "platform": true, "note": true, "metrics": true,
}

func decodePlatformMetrics(el json.RawMessage) (domain.SectionMetrics, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(el, &obj); err != nil {
		return domain.SectionMetrics{}, false
	}

	str := func(key string) string {
		var s string
		if raw, ok := obj[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}

		return s
	}

	m := domain.SectionMetrics{
		Section:  firstNonEmpty(str("section"), str("name"), str("title")),
		Platform: strings.ToLower(strings.TrimSpace(str("platform"))),
		Note:     textutil.StripTags(str("note")),
		Metrics:  make(map[string]float64),
	}

	if raw, ok := obj["metrics"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			for k, v := range nested {
				if n, ok := parseNumber(v); ok {
					m.Metrics[k] = n
				}
			}
		}
	}

	for k, raw := range obj {
		if metricMetaKeys[k] {
			continue
		}

		if v, ok := parseNumber(raw); ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			m.Metrics[k] = v
		}
	}

	if m.Section == "" {
		m.Section = m.Platform
	}

	if len(m.Metrics) == 0 {
		m.Metrics = nil
	}

	return m, m.Section != "" && (m.Metrics != nil || m.Note != "")
}

var bulletPrefixes = []string{"- ", "* ", "• ", "· "}

// decodeStrings accepts an array of strings or text objects, or a text blob
// with one item per line.
func decodeStrings(payload []byte) []string {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			out := make([]string, 0, len(items))

			for _, item := range items {
				if s, ok := decodeText(item); ok {
					out = append(out, s)
				}
			}

			return out
		}
	}

	text, ok := decodeText(trimmed)
	if !ok {
		return nil
	}

	return splitLines(text)
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)

		for _, p := range bulletPrefixes {
			line = strings.TrimPrefix(line, p)
		}

		line = trimOrdinal(line)

		if line != "" {
			out = append(out, line)
		}
	}

	return out
}

// trimOrdinal drops a leading "1." or "2)" list marker.
func trimOrdinal(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}

	if i == 0 || i >= len(line) || (line[i] != '.' && line[i] != ')') {
		return line
	}

	return strings.TrimSpace(line[i+1:])
}

type bucketWire struct {
	BucketType string     `json:"bucket_type"`
	Type       string     `json:"type"`
	Label      string     `json:"label"`
	Name       string     `json:"name"`
	Bucket     string     `json:"bucket"`
	Share      *flexFloat `json:"share"`
	Value      *flexFloat `json:"value"`
	Percentage *flexFloat `json:"percentage"`
}

func (w bucketWire) bucket() (domain.DemographicBucket, bool) {
	b := domain.DemographicBucket{Label: firstNonEmpty(w.Label, w.Name, w.Bucket)}

	for _, v := range []*flexFloat{w.Share, w.Value, w.Percentage} {
		if v != nil {
			b.Share = float64(*v)

			break
		}
	}

	return b, b.Label != ""
}

var bucketKinds = map[string]string{
	"age": "age", "ages": "age", "edad": "age",
	"gender": "gender", "genders": "gender", "genero": "gender", "sexo": "gender",
	"country": "countries", "countries": "countries", "paises": "countries",
	"city": "cities", "cities": "cities", "ciudades": "cities",
}

// decodeDemographics accepts {age: [...], gender: {...}, ...} or a flat list
// of {bucket_type, label, share} rows.
func decodeDemographics(payload []byte) (*domain.Demographics, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var rows []bucketWire
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("decode demographics rows: %w", err)
		}

		d := &domain.Demographics{}

		for _, row := range rows {
			if b, ok := row.bucket(); ok {
				addBucket(d, firstNonEmpty(row.BucketType, row.Type), b)
			}
		}

		return nonEmptyDemographics(d), nil
	}

	var groups map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &groups); err != nil {
		return nil, fmt.Errorf("decode demographics: %w", err)
	}

	d := &domain.Demographics{}

	for kind, raw := range groups {
		for _, b := range decodeBuckets(raw) {
			addBucket(d, kind, b)
		}
	}

	sortDemographics(d)

	return nonEmptyDemographics(d), nil
}

// decodeBuckets accepts a list of bucket objects or a {label: share} map.
func decodeBuckets(raw json.RawMessage) []domain.DemographicBucket {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '{' {
		var shares map[string]flexFloat
		if err := json.Unmarshal(trimmed, &shares); err != nil {
			return nil
		}

		out := make([]domain.DemographicBucket, 0, len(shares))
		for label, share := range shares {
			out = append(out, domain.DemographicBucket{Label: label, Share: float64(share)})
		}

		return out
	}

	var rows []bucketWire
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil
	}

	out := make([]domain.DemographicBucket, 0, len(rows))

	for _, row := range rows {
		if b, ok := row.bucket(); ok {
			out = append(out, b)
		}
	}

	return out
}

func addBucket(d *domain.Demographics, kind string, b domain.DemographicBucket) {
	switch bucketKinds[normalizeKey(textutil.Fold(kind))] {
	case "age":
		d.Age = append(d.Age, b)
	case "gender":
		d.Gender = append(d.Gender, b)
	case "countries":
		d.Countries = append(d.Countries, b)
	case "cities":
		d.Cities = append(d.Cities, b)
	}
}

func nonEmptyDemographics(d *domain.Demographics) *domain.Demographics {
	if d.IsEmpty() {
		return nil
	}

	return d
}

// DemographicsFromRows groups stored buckets by type. Unknown types are dropped.
func DemographicsFromRows(rows []domain.DemographicRow) *domain.Demographics {
	d := &domain.Demographics{}

	for _, row := range rows {
		if row.Label == "" {
			continue
		}

		addBucket(d, row.BucketType, domain.DemographicBucket{Label: row.Label, Share: row.Share})
	}

	sortDemographics(d)

	return nonEmptyDemographics(d)
}
