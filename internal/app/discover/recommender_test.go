package discover

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/lastfm"
)

type fakeLastFm struct {
	similar   []lastfm.TrackRef
	tags      []lastfm.Tag
	tagTracks map[string][]lastfm.TrackRef
	chart     []lastfm.TrackRef
	err       error
}

func (f *fakeLastFm) GetSimilarTracks(context.Context, string, string, int) ([]lastfm.TrackRef, error) {
	return f.similar, f.err
}

func (f *fakeLastFm) GetTopTags(context.Context, string, string, int) ([]lastfm.Tag, error) {
	return f.tags, f.err
}

func (f *fakeLastFm) GetTopTracks(_ context.Context, tag string, _ int) ([]lastfm.TrackRef, error) {
	return f.tagTracks[tag], f.err
}

func (f *fakeLastFm) GetChartTopTracks(context.Context, int) ([]lastfm.TrackRef, error) {
	return f.chart, f.err
}

type fakeCatalog struct {
	tracks []track.Track
	calls  atomic.Int32
	err    error
}

func (c *fakeCatalog) Search(_ context.Context, query string) ([]track.Track, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	var out []track.Track
	for _, t := range c.tracks {
		if strings.Contains(strings.ToLower(t.Title), strings.ToLower(query)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func song(id, title, artist string) track.Track {
	return track.Track{ID: id, Title: title, Artist: artist, Source: track.Stream(id)}
}

func library() *fakeCatalog {
	return &fakeCatalog{tracks: []track.Track{
		song("s", "Night Drive", "Aoi"),
		song("d1", "Dawn", "Ren"),
		song("d2", "Dusk", "Sora"),
		song("st", "Storm", "Kai"),
	}}
}

func seed() track.Track {
	return song("s", "Night Drive", "Aoi")
}

func newLastFm() *fakeLastFm {
	return &fakeLastFm{
		similar: []lastfm.TrackRef{
			{Name: "Dawn", Artist: "Ren"},
			{Name: "Dusk", Artist: "Sora"},
			{Name: "Missing", Artist: "Nobody"},
			{Name: "Night Drive", Artist: "Aoi"},
		},
		tags: []lastfm.Tag{{Name: "jazz", Count: 10}, {Name: "rock", Count: 100}},
		tagTracks: map[string][]lastfm.TrackRef{
			"rock": {{Name: "Dusk", Artist: "Sora"}, {Name: "Storm", Artist: "Kai"}},
			"jazz": {{Name: "Dawn", Artist: "Ren"}},
		},
	}
}

func newTestRecommender(t *testing.T, lf LastFm, sources ...Source) *Recommender {
	t.Helper()
	r, err := New(lf, sources, Config{TagCount: 1})
	require.NoError(t, err)
	r.shuffle = func(int, func(i, j int)) {}
	return r
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Track.ID
	}
	return out
}

func TestSimilar_ScoresBothStrategies(t *testing.T) {
	r := newTestRecommender(t, newLastFm(), Source{Name: "catalog", Searcher: library()})

	got, err := r.Similar(context.Background(), seed(), 10, nil)
	require.NoError(t, err)

	// Dusk is found by both strategies; the seed itself is never suggested
	assert.Equal(t, []string{"d2", "d1", "st"}, ids(got))
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 0.6, got[1].Score, 1e-9)
	assert.InDelta(t, 0.4, got[2].Score, 1e-9)
	assert.Equal(t, "catalog", got[0].Source)
}

func TestSimilar_ExcludeAndLimit(t *testing.T) {
	r := newTestRecommender(t, newLastFm(), Source{Name: "catalog", Searcher: library()})

	got, err := r.Similar(context.Background(), seed(), 1, map[string]bool{"d2": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids(got))
}

func TestSimilar_UsesFirstArtistOfList(t *testing.T) {
	r := newTestRecommender(t, newLastFm(), Source{Name: "catalog", Searcher: library()})

	s := seed()
	s.Artist = "Aoi, Ren"
	_, err := r.Similar(context.Background(), s, 10, nil)
	assert.NoError(t, err)

	s.Artist = ""
	_, err = r.Similar(context.Background(), s, 10, nil)
	assert.Error(t, err)
}

func TestSimilar_NoCandidates(t *testing.T) {
	lf := &fakeLastFm{err: errors.New("down")}
	r := newTestRecommender(t, lf, Source{Name: "catalog", Searcher: library()})

	_, err := r.Similar(context.Background(), seed(), 10, nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestMatch_FallsBackToNextSource(t *testing.T) {
	broken := &fakeCatalog{err: errors.New("unavailable")}
	previews := library()
	r := newTestRecommender(t, newLastFm(),
		Source{Name: "catalog", Searcher: broken},
		Source{Name: "spotify", Searcher: SearcherFunc(previews.Search)},
	)

	c := r.match(context.Background(), lastfm.TrackRef{Name: "Dawn", Artist: "Ren"})
	require.NotNil(t, c)
	assert.Equal(t, "d1", c.Track.ID)
	assert.Equal(t, "spotify", c.Source)

	// A miss seen while a source failed is retried next time
	assert.Nil(t, r.match(context.Background(), lastfm.TrackRef{Name: "Missing", Artist: "Nobody"}))
	before := previews.calls.Load()
	assert.Nil(t, r.match(context.Background(), lastfm.TrackRef{Name: "Missing", Artist: "Nobody"}))
	assert.Equal(t, before+1, previews.calls.Load())
}

func TestMatch_CachesResults(t *testing.T) {
	lib := library()
	r := newTestRecommender(t, newLastFm(), Source{Name: "catalog", Searcher: lib})
	ctx := context.Background()

	_, err := r.Similar(ctx, seed(), 10, nil)
	require.NoError(t, err)
	calls := lib.calls.Load()

	_, err = r.Similar(ctx, seed(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, calls, lib.calls.Load())
}

func TestChart(t *testing.T) {
	lf := &fakeLastFm{chart: []lastfm.TrackRef{
		{Name: "Dawn", Artist: "Ren"},
		{Name: "Missing", Artist: "Nobody"},
		{Name: "Dusk", Artist: "Sora"},
		{Name: "Dawn", Artist: "Ren"},
	}}
	r := newTestRecommender(t, lf, Source{Name: "catalog", Searcher: library()})
	ctx := context.Background()

	got, err := r.Chart(ctx, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids(got))

	got, err = r.Chart(ctx, 10, map[string]bool{"d1": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"d2"}, ids(got))

	got, err = r.Chart(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids(got))
}

func TestBestMatch(t *testing.T) {
	unplayable := track.Track{ID: "u", Title: "Dawn", Artist: "Ren"}
	results := []track.Track{
		unplayable,
		song("other", "Dawn", "Someone Else"),
		song("live", "Dawn (Live)", "Ren"),
		song("exact", "dawn", "Ren"),
	}

	got, ok := bestMatch(results, lastfm.TrackRef{Name: "Dawn", Artist: "Ren"})
	require.True(t, ok)
	assert.Equal(t, "exact", got.ID)

	got, ok = bestMatch(results[:3], lastfm.TrackRef{Name: "Dawn", Artist: "Ren"})
	require.True(t, ok)
	assert.Equal(t, "live", got.ID)

	_, ok = bestMatch(results[:2], lastfm.TrackRef{Name: "Dawn", Artist: "Ren"})
	assert.False(t, ok)
}

func TestNew_Validation(t *testing.T) {
	src := []Source{{Name: "catalog", Searcher: library()}}

	_, err := New(nil, src, Config{})
	assert.Error(t, err)

	_, err = New(newLastFm(), nil, Config{})
	assert.Error(t, err)

	_, err = New(newLastFm(), src, Config{TagWeight: 0.5, SimilarWeight: 0.6})
	assert.Error(t, err)

	r, err := New(newLastFm(), src, Config{})
	require.NoError(t, err)
	assert.Equal(t, Config{TagCount: 3, TagWeight: 0.4, SimilarWeight: 0.6}, r.config)
}
