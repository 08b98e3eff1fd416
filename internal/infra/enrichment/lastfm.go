package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

const (
	// DefaultLastFMBaseURL is the Last.fm web service endpoint
	DefaultLastFMBaseURL = "http://ws.audioscrobbler.com/2.0"

	// PriorityLastFM ranks Last.fm below the archive: name matching is fuzzy.
	PriorityLastFM = 0.3
)

// imageSizeRank orders Last.fm's named image sizes, largest last.
var imageSizeRank = map[string]int{
	"small":      1,
	"medium":     2,
	"large":      3,
	"extralarge": 4,
	"mega":       5,
}

// LastFMSource looks the album up with album.getinfo and downloads the
// largest image it lists.
type LastFMSource struct {
	apiKey   string
	baseURL  string
	cacheDir string
	priority float64
}

var _ cover.Source = (*LastFMSource)(nil)

// LastFMOption is a functional option for configuring the Last.fm source
type LastFMOption func(*LastFMSource)

// WithLastFMBaseURL sets a custom endpoint (useful for testing)
func WithLastFMBaseURL(u string) LastFMOption {
	return func(s *LastFMSource) {
		if u != "" {
			s.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithLastFMPriority overrides the default priority.
func WithLastFMPriority(p float64) LastFMOption {
	return func(s *LastFMSource) {
		s.priority = p
	}
}

// NewLastFMSource creates a Last.fm source caching into cacheDir.
func NewLastFMSource(apiKey, cacheDir string, opts ...LastFMOption) *LastFMSource {
	s := &LastFMSource{
		apiKey:   apiKey,
		baseURL:  DefaultLastFMBaseURL,
		cacheDir: cacheDir,
		priority: PriorityLastFM,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LastFMSource) Kind() cover.Kind { return cover.KindLastFM }

func (s *LastFMSource) Priority() float64 { return s.priority }

// Key hashes artist and album. Last.fm matches on names, so the MBID does
// not take part.
func (s *LastFMSource) Key(song cover.Song) (string, bool) {
	if song.Artist == "" || song.Album == "" {
		return "", false
	}
	return cover.ContentKey(song.Artist, song.Album), true
}

// CachePath is <cache>/<key>.
func (s *LastFMSource) CachePath(song cover.Song) (string, bool) {
	key, ok := s.Key(song)
	if !ok {
		return "", false
	}
	return cover.KeyPath(s.cacheDir, key)
}

// CheckLocal returns the cached cover for the song's key.
func (s *LastFMSource) CheckLocal(_ context.Context, song cover.Song) (*cover.Cover, error) {
	path, ok := s.CachePath(song)
	if !ok {
		return nil, nil
	}
	return cover.CachedCover(cover.KindLastFM, path), nil
}

// BuildQuery needs an API key, an artist and an album.
func (s *LastFMSource) BuildQuery(song cover.Song) (*cover.Query, error) {
	if s.apiKey == "" || song.Artist == "" || song.Album == "" {
		return nil, cover.ErrNotApplicable
	}

	q := s.baseURL +
		"?method=album.getinfo" +
		"&api_key=" + url.QueryEscape(s.apiKey) +
		"&format=json" +
		"&artist=" + url.QueryEscape(song.Artist) +
		"&album=" + url.QueryEscape(song.Album) +
		"&mbid=" + url.QueryEscape(song.MBID)

	return &cover.Query{URL: q, Backoff: true}, nil
}

type lastfmImage struct {
	Size string `json:"size" xml:"size,attr"`
	URL  string `json:"#text" xml:",chardata"`
}

type albumInfoJSON struct {
	Album *struct {
		Image []lastfmImage `json:"image"`
	} `json:"album"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type albumInfoXML struct {
	XMLName xml.Name `xml:"lfm"`
	Status  string   `xml:"status,attr"`
	Album   *struct {
		Image []lastfmImage `xml:"image"`
	} `xml:"album"`
	Error *struct {
		Code    int    `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"error"`
}

// ParseResponse extracts the largest image URL. The image itself is fetched
// in a second round-trip.
func (s *LastFMSource) ParseResponse(resp *cover.Response) (*cover.Location, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("%w: last.fm status %d", cover.ErrRemoteRejected, resp.Status)
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", cover.ErrParse)
	}

	var images []lastfmImage
	if body[0] == '<' {
		var doc albumInfoXML
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", cover.ErrParse, err)
		}
		if doc.Status == "failed" || doc.Error != nil {
			return nil, fmt.Errorf("%w: last.fm reported failure", cover.ErrRemoteRejected)
		}
		if doc.Album == nil {
			return nil, fmt.Errorf("%w: no album element", cover.ErrParse)
		}
		images = doc.Album.Image
	} else {
		var doc albumInfoJSON
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", cover.ErrParse, err)
		}
		if doc.Error != 0 {
			return nil, fmt.Errorf("%w: last.fm error %d: %s", cover.ErrRemoteRejected, doc.Error, doc.Message)
		}
		if doc.Album == nil {
			return nil, fmt.Errorf("%w: no album object", cover.ErrParse)
		}
		images = doc.Album.Image
	}

	best := largestImage(images)
	if best == "" {
		return nil, fmt.Errorf("%w: album has no images", cover.ErrRemoteRejected)
	}
	return &cover.Location{URL: best}, nil
}

// largestImage picks the URL of the biggest named size. Unnamed sizes rank
// below "small"; on a tie the first listed wins.
func largestImage(images []lastfmImage) string {
	best, bestRank := "", -1
	for _, img := range images {
		u := strings.TrimSpace(img.URL)
		if u == "" {
			continue
		}
		rank := imageSizeRank[img.Size]
		if rank > bestRank {
			best, bestRank = u, rank
		}
	}
	return best
}
