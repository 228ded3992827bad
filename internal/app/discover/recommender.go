// Package discover finds playable tracks related to a seed track. Last.fm
// supplies the related track names; catalog searches turn them into tracks.
package discover

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/lastfm"
)

// ErrNoCandidates is returned when no related track could be matched.
var ErrNoCandidates = errors.New("no playable related tracks found")

// LastFm defines the Last.fm operations used for discovery.
type LastFm interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.TrackRef, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TrackRef, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TrackRef, error)
}

// Searcher finds tracks by free text.
type Searcher interface {
	Search(ctx context.Context, query string) ([]track.Track, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string) ([]track.Track, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, query string) ([]track.Track, error) {
	return f(ctx, query)
}

// Source is a named Searcher. Sources are tried in order for every match.
type Source struct {
	Name     string
	Searcher Searcher
}

// Candidate is a playable track found for a related Last.fm track.
type Candidate struct {
	Track  track.Track
	Source string  // Name of the Source that matched
	Score  float64 // Higher is more related
}

// Config tunes the hybrid scoring.
type Config struct {
	TagCount      int     `default:"3" validate:"gte=1,lte=10"`
	TagWeight     float64 `default:"0.4" validate:"gte=0,lte=1"`
	SimilarWeight float64 `default:"0.6" validate:"gte=0,lte=1"`
}

// Recommender combines tag-based and similar-based Last.fm strategies.
type Recommender struct {
	lastfm  LastFm
	sources []Source
	config  Config

	// Match results keyed by artist and title; nil records a miss
	cache   map[string]*Candidate
	cacheMu sync.RWMutex

	shuffle func(n int, swap func(i, j int))
}

// New creates a Recommender.
func New(lf LastFm, sources []Source, cfg Config) (*Recommender, error) {
	if lf == nil {
		return nil, errors.New("last.fm client is required")
	}
	if len(sources) == 0 {
		return nil, errors.New("at least one source is required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if sum := cfg.TagWeight + cfg.SimilarWeight; sum < 0.999 || sum > 1.001 {
		return nil, errors.New("tag weight and similar weight must sum to 1.0")
	}

	return &Recommender{
		lastfm:  lf,
		sources: sources,
		config:  cfg,
		cache:   make(map[string]*Candidate),
		shuffle: rand.Shuffle,
	}, nil
}

// Similar returns up to limit tracks related to seed, best first. Tracks in
// exclude and the seed itself are left out.
func (r *Recommender) Similar(ctx context.Context, seed track.Track, limit int, exclude map[string]bool) ([]Candidate, error) {
	artist := primaryArtist(seed.Artist)
	if seed.Title == "" || artist == "" {
		return nil, errors.New("seed track needs a title and an artist")
	}
	if limit <= 0 {
		limit = 10
	}

	skip := make(map[string]bool, len(exclude)+1)
	for id, v := range exclude {
		skip[id] = v
	}
	skip[seed.ID] = true

	var tagCandidates, similarCandidates []Candidate
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tagCandidates = r.tagBased(ctx, seed.Title, artist, skip)
	}()
	go func() {
		defer wg.Done()
		similarCandidates = r.similarBased(ctx, seed.Title, artist, skip)
	}()
	wg.Wait()

	merged := r.scoreAndMerge(tagCandidates, similarCandidates)
	if len(merged) == 0 {
		return nil, ErrNoCandidates
	}
	zlog.Debug().Msgf("discover: similar candidates: seed=%s tag=%d similar=%d merged=%d",
		seed.ID, len(tagCandidates), len(similarCandidates), len(merged))
	return truncate(merged, limit), nil
}

// Chart returns up to limit playable tracks from the global Last.fm chart, in
// random order.
func (r *Recommender) Chart(ctx context.Context, limit int, exclude map[string]bool) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	refs, err := r.lastfm.GetChartTopTracks(ctx, 50)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chart")
	}

	// Avoid always picking the same top tracks
	r.shuffle(len(refs), func(i, j int) { refs[i], refs[j] = refs[j], refs[i] })

	seen := make(map[string]bool)
	var candidates []Candidate
	for _, ref := range refs {
		c := r.match(ctx, ref)
		if c == nil || exclude[c.Track.ID] || seen[c.Track.ID] {
			continue
		}
		seen[c.Track.ID] = true
		candidates = append(candidates, *c)
		if len(candidates) >= limit {
			break
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return candidates, nil
}

// tagBased matches top tracks of the seed's strongest tags.
func (r *Recommender) tagBased(ctx context.Context, title, artist string, skip map[string]bool) []Candidate {
	tags, err := r.lastfm.GetTopTags(ctx, title, artist, r.config.TagCount)
	if err != nil {
		zlog.Debug().Msgf("discover: top tags failed: %v", err)
		return nil
	}

	tags = append([]lastfm.Tag(nil), tags...)
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Count > tags[j].Count })
	tags = truncate(tags, r.config.TagCount)

	var candidates []Candidate
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, tag := range tags {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			refs, err := r.lastfm.GetTopTracks(ctx, tag, 20)
			if err != nil {
				return // Skip on error
			}
			for _, ref := range refs {
				if c := r.match(ctx, ref); c != nil && !skip[c.Track.ID] {
					mu.Lock()
					candidates = append(candidates, *c)
					mu.Unlock()
				}
			}
		}(tag.Name)
	}
	wg.Wait()

	return dedupe(candidates)
}

// similarBased matches Last.fm's similar tracks of the seed.
func (r *Recommender) similarBased(ctx context.Context, title, artist string, skip map[string]bool) []Candidate {
	refs, err := r.lastfm.GetSimilarTracks(ctx, title, artist, 30)
	if err != nil {
		zlog.Debug().Msgf("discover: similar tracks failed: %v", err)
		return nil
	}

	var candidates []Candidate
	for _, ref := range refs {
		if c := r.match(ctx, ref); c != nil && !skip[c.Track.ID] {
			candidates = append(candidates, *c)
		}
	}
	return dedupe(candidates)
}

// scoreAndMerge weighs candidates by the strategies that found them. Ties keep
// the similar-based order, then the tag-based order.
func (r *Recommender) scoreAndMerge(tagCandidates, similarCandidates []Candidate) []Candidate {
	index := make(map[string]int)
	var merged []Candidate

	add := func(cs []Candidate, weight float64) {
		for _, c := range cs {
			if i, ok := index[c.Track.ID]; ok {
				merged[i].Score += weight
				continue
			}
			c.Score = weight
			index[c.Track.ID] = len(merged)
			merged = append(merged, c)
		}
	}
	add(similarCandidates, r.config.SimilarWeight)
	add(tagCandidates, r.config.TagWeight)

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return merged
}

// match looks ref up in each source in order, with caching.
func (r *Recommender) match(ctx context.Context, ref lastfm.TrackRef) *Candidate {
	key := strings.ToLower(ref.Artist) + "\x00" + strings.ToLower(ref.Name)

	r.cacheMu.RLock()
	c, ok := r.cache[key]
	r.cacheMu.RUnlock()
	if ok {
		return c
	}

	failed := false
	for _, src := range r.sources {
		results, err := src.Searcher.Search(ctx, ref.Name)
		if err != nil {
			zlog.Debug().Msgf("discover: source failed, trying next: source=%s error=%v", src.Name, err)
			failed = true
			continue
		}
		if t, ok := bestMatch(results, ref); ok {
			c = &Candidate{Track: t, Source: src.Name}
			break
		}
	}

	// Misses are cached only when every source answered
	if c != nil || !failed {
		r.cacheMu.Lock()
		r.cache[key] = c
		r.cacheMu.Unlock()
	}
	return c
}

// bestMatch picks the first playable result whose artist matches ref, preferring
// an exact title.
func bestMatch(results []track.Track, ref lastfm.TrackRef) (track.Track, bool) {
	artist := strings.ToLower(ref.Artist)
	title := strings.ToLower(ref.Name)

	fallback := -1
	for i, t := range results {
		if !t.IsPlayable() || !strings.Contains(strings.ToLower(t.Artist), artist) {
			continue
		}
		got := strings.ToLower(t.Title)
		if got == title {
			return t, true
		}
		if fallback < 0 && strings.Contains(got, title) {
			fallback = i
		}
	}
	if fallback >= 0 {
		return results[fallback], true
	}
	return track.Track{}, false
}

// primaryArtist returns the first name of a comma separated artist list.
func primaryArtist(artist string) string {
	first, _, _ := strings.Cut(artist, ",")
	return strings.TrimSpace(first)
}

func dedupe(cs []Candidate) []Candidate {
	seen := make(map[string]bool, len(cs))
	result := cs[:0]
	for _, c := range cs {
		if seen[c.Track.ID] {
			continue
		}
		seen[c.Track.ID] = true
		result = append(result, c)
	}
	return result
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
