package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedeck/internal/app/discover"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/app/session/state"
	"github.com/osa030/tunedeck/internal/domain/playlist"
	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/catalog"
	"github.com/osa030/tunedeck/internal/infra/spotify"
)

type nopOutput struct{}

func (nopOutput) Load(string) error             { return nil }
func (nopOutput) Play() error                   { return nil }
func (nopOutput) Pause() error                  { return nil }
func (nopOutput) Seek(time.Duration) error      { return nil }
func (nopOutput) Unload() error                 { return nil }
func (nopOutput) SetListener(playback.Listener) {}

type fakeLibrary struct {
	songs      []track.Track
	playlists  []playlist.Playlist
	lastQuery  string
	added      []string // "playlistID/songID"
	deleted    []string
	registered []string
	passwords  [2]string
}

func (l *fakeLibrary) ListSongs(context.Context) ([]track.Track, error) { return l.songs, nil }

func (l *fakeLibrary) Search(_ context.Context, q string) ([]track.Track, error) {
	l.lastQuery = q
	return l.songs[:1], nil
}

func (l *fakeLibrary) MyPlaylists(context.Context) ([]playlist.Playlist, error) {
	return l.playlists, nil
}

func (l *fakeLibrary) CreatePlaylist(_ context.Context, name string) (*playlist.Playlist, error) {
	return &playlist.Playlist{ID: "p-new", Name: name}, nil
}

func (l *fakeLibrary) AddToPlaylist(_ context.Context, playlistID, songID string) (*playlist.Playlist, error) {
	l.added = append(l.added, playlistID+"/"+songID)
	return &playlist.Playlist{ID: playlistID}, nil
}

func (l *fakeLibrary) DeletePlaylist(_ context.Context, playlistID string) error {
	l.deleted = append(l.deleted, playlistID)
	return nil
}

func (l *fakeLibrary) Register(_ context.Context, username, _ string) error {
	l.registered = append(l.registered, username)
	return nil
}

func (l *fakeLibrary) ChangePassword(_ context.Context, oldPassword, newPassword string) error {
	l.passwords = [2]string{oldPassword, newPassword}
	return nil
}

type fakeSession struct {
	phase state.Phase
	done  chan struct{}
}

func (s *fakeSession) Login(_ context.Context, user, _ string) (*catalog.User, error) {
	s.phase = state.PhaseLoggedIn
	return &catalog.User{ID: "u1", Username: user}, nil
}

func (s *fakeSession) Restore(context.Context) (*catalog.User, error) {
	return &catalog.User{ID: "u1", Username: "mika"}, nil
}

func (s *fakeSession) Logout(context.Context) error {
	s.phase = state.PhaseLoggedOut
	return nil
}

func (s *fakeSession) Phase() state.Phase    { return s.phase }
func (s *fakeSession) Username() string      { return "mika" }
func (s *fakeSession) Done() <-chan struct{} { return s.done }

func songs() []track.Track {
	return []track.Track{
		{ID: "a", Title: "Alpha", Artist: "One", DurationHint: 90 * time.Second, Source: track.Direct("https://cdn/a.mp3")},
		{ID: "b", Title: "Beta", Artist: "Two", Source: track.Direct("https://cdn/b.mp3")},
		{ID: "c", Title: "Gamma", Artist: "Three", Source: track.Direct("https://cdn/c.mp3")},
	}
}

func newTestPlayer(t *testing.T) (*player, *fakeLibrary, *bytes.Buffer) {
	t.Helper()
	ctrl := playback.NewController(nopOutput{}, nil, nil, playback.Config{})
	t.Cleanup(ctrl.Close)

	lib := &fakeLibrary{
		songs: songs(),
		playlists: []playlist.Playlist{
			{ID: "p1", Name: "Mix", Tracks: songs()[1:]},
		},
	}
	var buf bytes.Buffer
	p := newPlayer(ctrl, &fakeSession{done: make(chan struct{})}, lib, nil, nil, &buf)
	return p, lib, &buf
}

func TestExec_PlayQueuesListing(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	ctx := context.Background()

	require.NoError(t, p.exec(ctx, "songs"))
	require.NoError(t, p.exec(ctx, "play 2"))

	s := p.ctrl.Session()
	require.NotNil(t, s.Track)
	assert.Equal(t, "b", s.Track.ID)
	assert.Equal(t, []string{"a", "b", "c"}, track.IDs(s.Queue))
}

func TestExec_SearchJoinsArguments(t *testing.T) {
	p, lib, buf := newTestPlayer(t)

	require.NoError(t, p.exec(context.Background(), "search night  drive"))
	assert.Equal(t, "night drive", lib.lastQuery)
	assert.Contains(t, buf.String(), "One - Alpha")
	assert.Len(t, p.results, 1)
}

func TestExec_PlaylistsRequireLogin(t *testing.T) {
	p, _, buf := newTestPlayer(t)
	ctx := context.Background()

	assert.Error(t, p.exec(ctx, "playlists"))

	require.NoError(t, p.exec(ctx, "login mika secret"))
	require.NoError(t, p.exec(ctx, "playlists"))
	assert.Contains(t, buf.String(), "Mix")

	require.NoError(t, p.exec(ctx, "open 1"))
	assert.Equal(t, []string{"b", "c"}, track.IDs(p.results))
}

func TestExec_PlaylistEditing(t *testing.T) {
	p, lib, buf := newTestPlayer(t)
	ctx := context.Background()

	assert.Error(t, p.exec(ctx, "newlist Road Trip"), "login required")

	require.NoError(t, p.exec(ctx, "login mika secret"))
	require.NoError(t, p.exec(ctx, "playlists"))
	require.NoError(t, p.exec(ctx, "newlist Road Trip"))
	require.Len(t, p.playlists, 2)
	assert.Equal(t, "Road Trip", p.playlists[1].Name)
	assert.Contains(t, buf.String(), "Created playlist Road Trip (#2)")

	assert.Error(t, p.exec(ctx, "add 2"), "nothing is playing")

	require.NoError(t, p.exec(ctx, "songs"))
	require.NoError(t, p.exec(ctx, "add 2 3"))
	require.NoError(t, p.exec(ctx, "play 1"))
	require.NoError(t, p.exec(ctx, "add 2"))
	assert.Equal(t, []string{"p-new/c", "p-new/a"}, lib.added)
	assert.Equal(t, []string{"c", "a"}, p.playlists[1].TrackIDs())

	require.NoError(t, p.exec(ctx, "rmlist 1"))
	assert.Equal(t, []string{"p1"}, lib.deleted)
	require.Len(t, p.playlists, 1)
	assert.Equal(t, "Road Trip", p.playlists[0].Name)

	assert.Error(t, p.exec(ctx, "rmlist 2"))
}

func TestExec_AddRejectsPreviewTracks(t *testing.T) {
	p, lib, _ := newTestPlayer(t)
	ctx := context.Background()
	require.NoError(t, p.exec(ctx, "login mika secret"))
	require.NoError(t, p.exec(ctx, "playlists"))

	p.results = []track.Track{{ID: spotify.IDPrefix + "x1", Title: "Preview", Source: track.Direct("https://p.scdn.co/x1")}}
	assert.Error(t, p.exec(ctx, "add 1 1"))
	assert.Empty(t, lib.added)
}

func TestExec_AccountCommands(t *testing.T) {
	p, lib, buf := newTestPlayer(t)
	ctx := context.Background()

	assert.Error(t, p.exec(ctx, "register mika"))
	require.NoError(t, p.exec(ctx, "register mika secret"))
	assert.Equal(t, []string{"mika"}, lib.registered)
	assert.Contains(t, buf.String(), "Registered mika")

	assert.Error(t, p.exec(ctx, "passwd secret better"), "login required")
	require.NoError(t, p.exec(ctx, "login mika secret"))
	require.NoError(t, p.exec(ctx, "passwd secret better"))
	assert.Equal(t, [2]string{"secret", "better"}, lib.passwords)
}

func TestExec_LikeCurrentTrack(t *testing.T) {
	p, _, buf := newTestPlayer(t)
	ctx := context.Background()

	assert.Error(t, p.exec(ctx, "like"), "nothing is playing")

	require.NoError(t, p.exec(ctx, "songs"))
	require.NoError(t, p.exec(ctx, "play 1"))
	require.NoError(t, p.exec(ctx, "like"))
	assert.True(t, p.ctrl.IsLiked("a"))
	assert.Contains(t, buf.String(), "♥ One - Alpha")

	require.NoError(t, p.exec(ctx, "liked"))
	assert.Equal(t, []string{"a"}, track.IDs(p.results))
}

func TestExec_Errors(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	ctx := context.Background()

	assert.Error(t, p.exec(ctx, "dance"))
	assert.Error(t, p.exec(ctx, "play 1"), "nothing listed yet")
	assert.Error(t, p.exec(ctx, "spotify anything"), "spotify is not configured")
	assert.Error(t, p.exec(ctx, "similar"), "discovery is not configured")
	assert.ErrorIs(t, p.exec(ctx, "quit"), errQuit)
	assert.NoError(t, p.exec(ctx, "   "))
}

func TestRun_StopsAtQuit(t *testing.T) {
	p, _, buf := newTestPlayer(t)

	err := p.run(context.Background(), strings.NewReader("songs\nquit\nsongs\n"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "tunedeck ready")
	assert.Contains(t, buf.String(), "Three - Gamma")
}

func TestRun_StopsAtEOF(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	assert.NoError(t, p.run(context.Background(), strings.NewReader("")))
}

func TestParseIndex(t *testing.T) {
	i, err := parseIndex([]string{"3"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	for _, args := range [][]string{{"0"}, {"4"}, {"x"}, {}} {
		_, err := parseIndex(args, 3)
		assert.Error(t, err, "args=%v", args)
	}
	_, err = parseIndex([]string{"1"}, 0)
	assert.Error(t, err)
}

func TestParseSeek(t *testing.T) {
	known := playback.Session{Duration: 200 * time.Second, DurationKnown: true}

	tests := []struct {
		name    string
		arg     string
		session playback.Session
		want    float64
		wantErr bool
	}{
		{"percent", "25", playback.Session{}, 0.25, false},
		{"percent sign", "50%", playback.Session{}, 0.5, false},
		{"minutes and seconds", "1:40", known, 0.5, false},
		{"unknown duration", "1:40", playback.Session{}, 0, true},
		{"bad seconds", "1:75", known, 0, true},
		{"garbage", "soon", known, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSeek(tt.arg, tt.session)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "--:--", formatDuration(0))
	assert.Equal(t, "0:05", formatDuration(5*time.Second))
	assert.Equal(t, "3:07", formatDuration(187*time.Second+400*time.Millisecond))
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "idle", formatStatus(playback.Session{}))

	tr := songs()[0]
	s := playback.Session{
		Track:         &tr,
		Phase:         playback.PhasePlaying,
		Position:      30 * time.Second,
		Duration:      90 * time.Second,
		DurationKnown: true,
		Loop:          true,
	}
	assert.Equal(t, "playing One - Alpha 0:30/1:30 (loop)", formatStatus(s))
}

func TestFormatNotice(t *testing.T) {
	tr := songs()[0]

	stale := playback.Notice{Track: tr, Err: playback.NewMediaError(playback.MediaErrorSrcNotSupported, errors.New("403"))}
	assert.Contains(t, formatNotice(stale), "! could not play One - Alpha")
	assert.Contains(t, formatNotice(stale), "media link expired")

	broken := playback.Notice{Track: tr, Err: playback.NewMediaError(playback.MediaErrorDecode, errors.New("bad frame"))}
	assert.NotContains(t, formatNotice(broken), "media link expired")
}

type fakeRecommender struct {
	seed    track.Track
	exclude map[string]bool
}

func (r *fakeRecommender) Similar(_ context.Context, seed track.Track, _ int, exclude map[string]bool) ([]discover.Candidate, error) {
	r.seed, r.exclude = seed, exclude
	return []discover.Candidate{{Track: songs()[2], Source: "catalog", Score: 1}}, nil
}

func (r *fakeRecommender) Chart(context.Context, int, map[string]bool) ([]discover.Candidate, error) {
	return []discover.Candidate{{Track: songs()[1], Source: "catalog"}}, nil
}

func TestExec_SimilarUsesCurrentTrack(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	rec := &fakeRecommender{}
	p.discover = rec
	ctx := context.Background()

	assert.Error(t, p.exec(ctx, "similar"), "nothing is playing")

	require.NoError(t, p.exec(ctx, "songs"))
	require.NoError(t, p.exec(ctx, "play 1"))
	require.NoError(t, p.exec(ctx, "similar"))

	assert.Equal(t, "a", rec.seed.ID)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, rec.exclude)
	assert.Equal(t, []string{"c"}, track.IDs(p.results))

	require.NoError(t, p.exec(ctx, "chart"))
	assert.Equal(t, []string{"b"}, track.IDs(p.results))
}
