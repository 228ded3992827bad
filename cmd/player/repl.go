package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/discover"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/app/session/state"
	"github.com/osa030/tunedeck/internal/domain/playlist"
	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/catalog"
	"github.com/osa030/tunedeck/internal/infra/spotify"
)

var errQuit = errors.New("quit")

// library is the part of the catalog the console browses and edits.
type library interface {
	ListSongs(ctx context.Context) ([]track.Track, error)
	Search(ctx context.Context, query string) ([]track.Track, error)
	MyPlaylists(ctx context.Context) ([]playlist.Playlist, error)
	CreatePlaylist(ctx context.Context, name string) (*playlist.Playlist, error)
	AddToPlaylist(ctx context.Context, playlistID, songID string) (*playlist.Playlist, error)
	DeletePlaylist(ctx context.Context, playlistID string) error
	Register(ctx context.Context, username, password string) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

// previewSearcher finds tracks playable from a preview URL.
type previewSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// recommender suggests playable tracks related to a seed.
type recommender interface {
	Similar(ctx context.Context, seed track.Track, limit int, exclude map[string]bool) ([]discover.Candidate, error)
	Chart(ctx context.Context, limit int, exclude map[string]bool) ([]discover.Candidate, error)
}

// authSession is the backend login session.
type authSession interface {
	Login(ctx context.Context, username, password string) (*catalog.User, error)
	Restore(ctx context.Context) (*catalog.User, error)
	Logout(ctx context.Context) error
	Phase() state.Phase
	Username() string
	Done() <-chan struct{}
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

// player is the interactive console. It observes the controller and issues
// its commands.
type player struct {
	ctrl     *playback.Controller
	sess     authSession
	lib      library
	previews previewSearcher // nil when Spotify is not configured
	discover recommender     // nil when Last.fm is not configured

	mu sync.Mutex // Serializes writes to w
	w  io.Writer

	// Last listing; play and like take 1-based indexes into it
	results   []track.Track
	playlists []playlist.Playlist

	// Last reported track and phase, to print transitions only
	lastTrack string
	lastPhase playback.Phase

	commands map[string]*command
	names    []string
}

func newPlayer(ctrl *playback.Controller, sess authSession, lib library, previews previewSearcher, rec recommender, w io.Writer) *player {
	p := &player{
		ctrl:     ctrl,
		sess:     sess,
		lib:      lib,
		previews: previews,
		discover: rec,
		w:        w,
	}
	p.register()
	return p
}

func (p *player) register() {
	p.commands = map[string]*command{}
	add := func(name, usage, help string, run func(ctx context.Context, args []string) error, aliases ...string) {
		c := &command{usage: usage, help: help, run: run}
		p.commands[name] = c
		p.names = append(p.names, name)
		for _, a := range aliases {
			p.commands[a] = c
		}
	}

	add("help", "help", "Show this help", p.cmdHelp, "?")
	add("songs", "songs", "List the catalog", p.cmdSongs)
	add("search", "search <text>", "Search the catalog", p.cmdSearch, "s")
	add("spotify", "spotify <text>", "Search Spotify previews", p.cmdSpotify, "sp")
	add("playlists", "playlists", "List your playlists", p.cmdPlaylists)
	add("open", "open <n>", "List the tracks of playlist n", p.cmdOpen)
	add("newlist", "newlist <name>", "Create a playlist", p.cmdNewList)
	add("add", "add <playlist n> [track n]", "Add the current track or track n to a playlist", p.cmdAdd)
	add("rmlist", "rmlist <n>", "Delete playlist n", p.cmdRemoveList)
	add("liked", "liked", "List liked catalog songs", p.cmdLiked)
	add("similar", "similar [n]", "List tracks related to the current track or track n", p.cmdSimilar)
	add("chart", "chart", "List playable tracks from the Last.fm chart", p.cmdChart)
	add("list", "list", "Show the last listing again", p.cmdList, "ls")
	add("play", "play [n]", "Play track n of the listing, queueing the listing", p.cmdPlay)
	add("pause", "pause", "Toggle play/pause", p.simple(p.ctrl.TogglePlay), "p", "toggle")
	add("next", "next", "Next track", p.simple(p.ctrl.Next), "n")
	add("prev", "prev", "Previous track", p.simple(p.ctrl.Prev), "b")
	add("seek", "seek <percent|m:ss>", "Seek within the current track", p.cmdSeek)
	add("loop", "loop", "Toggle repeat of the current track", p.cmdLoop)
	add("shuffle", "shuffle", "Toggle shuffle", p.cmdShuffle)
	add("like", "like [n]", "Toggle like of the current track or track n", p.cmdLike)
	add("stop", "stop", "Stop playback", p.simple(p.ctrl.Stop))
	add("status", "status", "Show the playback status", p.cmdStatus, "st")
	add("login", "login <user> <password>", "Log in to the catalog", p.cmdLogin)
	add("logout", "logout", "Stop playback and log out", p.cmdLogout)
	add("register", "register <user> <password>", "Create a catalog account", p.cmdRegister)
	add("passwd", "passwd <old> <new>", "Change your password", p.cmdPasswd)
	add("whoami", "whoami", "Show the logged in user", p.cmdWhoami)
	add("quit", "quit", "Exit", func(context.Context, []string) error { return errQuit }, "exit", "q")
}

func (p *player) simple(fn func()) func(context.Context, []string) error {
	return func(context.Context, []string) error {
		fn()
		return nil
	}
}

// run reads commands from in until quit, EOF or cancellation.
func (p *player) run(ctx context.Context, in io.Reader) error {
	id := p.ctrl.Subscribe(p.onSession)
	defer p.ctrl.Unsubscribe(id)

	lines := make(chan string)
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stopped:
				return
			}
		}
	}()

	p.printf("tunedeck ready. Type 'help' for commands.\n")
	notices := p.ctrl.Notices()

	for {
		var ended <-chan struct{}
		if p.sess.Phase() == state.PhaseLoggedIn {
			ended = p.sess.Done()
		}

		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notices:
			if !ok {
				return nil
			}
			p.printf("%s\n", formatNotice(n))
		case <-ended:
			if p.sess.Phase() == state.PhaseExpired {
				p.printf("! session expired, playback stopped. Use 'login <user> <password>'.\n")
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := p.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				p.printf("error: %v\n", err)
			}
		}
	}
}

// exec runs one command line.
func (p *player) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	cmd, ok := p.commands[name]
	if !ok {
		return errors.Newf("unknown command %q, type 'help'", name)
	}
	zlog.Debug().Msgf("console: command=%s args=%d", name, len(fields)-1)
	return cmd.run(ctx, fields[1:])
}

// onSession prints track and phase transitions. Time updates are not printed.
func (p *player) onSession(s playback.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := ""
	if s.Track != nil {
		id = s.Track.ID
	}
	if id == p.lastTrack && s.Phase == p.lastPhase {
		return
	}
	p.lastTrack, p.lastPhase = id, s.Phase

	if s.Track == nil {
		fmt.Fprintln(p.w, "■ stopped")
		return
	}
	switch s.Phase {
	case playback.PhasePlaying:
		fmt.Fprintf(p.w, "▶ %s\n", formatNowPlaying(s))
	case playback.PhasePaused:
		fmt.Fprintf(p.w, "⏸ %s\n", formatNowPlaying(s))
	case playback.PhaseResolving, playback.PhaseLoading:
		fmt.Fprintf(p.w, "… loading %s\n", s.Track.DisplayName())
	case playback.PhaseFailed:
		fmt.Fprintf(p.w, "✗ %s: %v\n", s.Track.DisplayName(), s.Err)
	}
}

func (p *player) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *player) show(tracks []track.Track) {
	p.results = tracks
	p.mu.Lock()
	defer p.mu.Unlock()
	printTracks(p.w, tracks, p.ctrl.IsLiked)
}

func (p *player) cmdHelp(context.Context, []string) error {
	names := append([]string(nil), p.names...)
	sort.Strings(names)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range names {
		c := p.commands[name]
		fmt.Fprintf(p.w, "  %-26s %s\n", c.usage, c.help)
	}
	return nil
}

func (p *player) cmdSongs(ctx context.Context, _ []string) error {
	tracks, err := p.lib.ListSongs(ctx)
	if err != nil {
		return err
	}
	p.show(tracks)
	return nil
}

func (p *player) cmdSearch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: search <text>")
	}
	tracks, err := p.lib.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	p.show(tracks)
	return nil
}

func (p *player) cmdSpotify(ctx context.Context, args []string) error {
	if p.previews == nil {
		return errors.New("spotify is not configured")
	}
	if len(args) == 0 {
		return errors.New("usage: spotify <text>")
	}
	tracks, err := p.previews.Search(ctx, strings.Join(args, " "), 20)
	if err != nil {
		return err
	}
	p.show(tracks)
	return nil
}

func (p *player) cmdPlaylists(ctx context.Context, _ []string) error {
	if err := p.requireLogin(); err != nil {
		return err
	}
	playlists, err := p.lib.MyPlaylists(ctx)
	if err != nil {
		return err
	}
	p.playlists = playlists
	p.mu.Lock()
	defer p.mu.Unlock()
	printPlaylists(p.w, playlists)
	return nil
}

func (p *player) cmdOpen(_ context.Context, args []string) error {
	i, err := parseIndex(args, len(p.playlists))
	if err != nil {
		return err
	}
	p.show(p.playlists[i].Playable())
	return nil
}

func (p *player) requireLogin() error {
	if p.sess.Phase() != state.PhaseLoggedIn {
		return errors.New("login required")
	}
	return nil
}

func (p *player) cmdNewList(ctx context.Context, args []string) error {
	if err := p.requireLogin(); err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("usage: newlist <name>")
	}
	pl, err := p.lib.CreatePlaylist(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	p.playlists = append(p.playlists, *pl)
	p.printf("Created playlist %s (#%d)\n", pl.Name, len(p.playlists))
	return nil
}

func (p *player) cmdAdd(ctx context.Context, args []string) error {
	if err := p.requireLogin(); err != nil {
		return err
	}
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: add <playlist n> [track n]")
	}
	i, err := parseIndex(args[:1], len(p.playlists))
	if err != nil {
		return err
	}

	var t track.Track
	if len(args) == 1 {
		s := p.ctrl.Session()
		if s.Track == nil {
			return errors.New("nothing is playing")
		}
		t = *s.Track
	} else {
		j, err := parseIndex(args[1:], len(p.results))
		if err != nil {
			return err
		}
		t = p.results[j]
	}
	if strings.HasPrefix(t.ID, spotify.IDPrefix) {
		return errors.Newf("%s is not a catalog song", t.DisplayName())
	}

	target := p.playlists[i]
	updated, err := p.lib.AddToPlaylist(ctx, target.ID, t.ID)
	if err != nil {
		return err
	}
	if updated.Name != "" {
		p.playlists[i] = *updated
	} else {
		p.playlists[i].Tracks = append(p.playlists[i].Tracks, t)
	}
	p.printf("Added %s to %s\n", t.DisplayName(), target.Name)
	return nil
}

func (p *player) cmdRemoveList(ctx context.Context, args []string) error {
	if err := p.requireLogin(); err != nil {
		return err
	}
	i, err := parseIndex(args, len(p.playlists))
	if err != nil {
		return err
	}
	target := p.playlists[i]
	if err := p.lib.DeletePlaylist(ctx, target.ID); err != nil {
		return err
	}
	p.playlists = slices.Delete(p.playlists, i, i+1)
	p.printf("Deleted playlist %s\n", target.Name)
	return nil
}

func (p *player) cmdLiked(ctx context.Context, _ []string) error {
	ids := p.ctrl.LikedIDs()
	if len(ids) == 0 {
		p.printf("No liked tracks\n")
		return nil
	}
	songs, err := p.lib.ListSongs(ctx)
	if err != nil {
		return err
	}
	liked := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		if i := track.IndexOf(songs, id); i >= 0 {
			liked = append(liked, songs[i])
		}
	}
	p.show(liked)
	if missing := len(ids) - len(liked); missing > 0 {
		p.printf("(%d liked tracks are not in the catalog)\n", missing)
	}
	return nil
}

func (p *player) cmdSimilar(ctx context.Context, args []string) error {
	if p.discover == nil {
		return errors.New("discovery is not configured")
	}

	s := p.ctrl.Session()
	var seed track.Track
	if len(args) == 0 {
		if s.Track == nil {
			return errors.New("nothing is playing")
		}
		seed = *s.Track
	} else {
		i, err := parseIndex(args, len(p.results))
		if err != nil {
			return err
		}
		seed = p.results[i]
	}

	candidates, err := p.discover.Similar(ctx, seed, 20, queued(s))
	if err != nil {
		return err
	}
	p.showCandidates(candidates)
	return nil
}

func (p *player) cmdChart(ctx context.Context, _ []string) error {
	if p.discover == nil {
		return errors.New("discovery is not configured")
	}
	candidates, err := p.discover.Chart(ctx, 20, queued(p.ctrl.Session()))
	if err != nil {
		return err
	}
	p.showCandidates(candidates)
	return nil
}

func (p *player) showCandidates(candidates []discover.Candidate) {
	tracks := make([]track.Track, len(candidates))
	for i, c := range candidates {
		tracks[i] = c.Track
	}
	p.show(tracks)
}

// queued returns the IDs in the session's queue.
func queued(s playback.Session) map[string]bool {
	ids := make(map[string]bool, len(s.Queue))
	for _, t := range s.Queue {
		ids[t.ID] = true
	}
	return ids
}

func (p *player) cmdList(context.Context, []string) error {
	p.show(p.results)
	return nil
}

func (p *player) cmdPlay(_ context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"1"}
	}
	i, err := parseIndex(args, len(p.results))
	if err != nil {
		return err
	}
	queue := append([]track.Track(nil), p.results...)
	return p.ctrl.Play(queue[i], queue)
}

func (p *player) cmdSeek(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: seek <percent|m:ss>")
	}
	ratio, err := parseSeek(args[0], p.ctrl.Session())
	if err != nil {
		return err
	}
	p.ctrl.Seek(ratio)
	return nil
}

func (p *player) cmdLoop(context.Context, []string) error {
	p.printf("loop: %s\n", onOff(p.ctrl.ToggleLoop()))
	return nil
}

func (p *player) cmdShuffle(context.Context, []string) error {
	p.printf("shuffle: %s\n", onOff(p.ctrl.ToggleShuffle()))
	return nil
}

func (p *player) cmdLike(_ context.Context, args []string) error {
	var t track.Track
	if len(args) == 0 {
		s := p.ctrl.Session()
		if s.Track == nil {
			return errors.New("nothing is playing")
		}
		t = *s.Track
	} else {
		i, err := parseIndex(args, len(p.results))
		if err != nil {
			return err
		}
		t = p.results[i]
	}

	liked, err := p.ctrl.ToggleLike(t.ID)
	if err != nil {
		return err
	}
	if liked {
		p.printf("♥ %s\n", t.DisplayName())
	} else {
		p.printf("♡ %s\n", t.DisplayName())
	}
	return nil
}

func (p *player) cmdStatus(context.Context, []string) error {
	p.printf("%s\n", formatStatus(p.ctrl.Session()))
	return nil
}

func (p *player) cmdLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <user> <password>")
	}
	user, err := p.sess.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	p.printf("Logged in as %s\n", user.Username)
	return nil
}

func (p *player) cmdLogout(ctx context.Context, _ []string) error {
	err := p.sess.Logout(ctx)
	p.playlists = nil
	if err != nil {
		return err
	}
	p.printf("Logged out\n")
	return nil
}

func (p *player) cmdRegister(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: register <user> <password>")
	}
	if err := p.lib.Register(ctx, args[0], args[1]); err != nil {
		return err
	}
	p.printf("Registered %s. Use 'login %s <password>'.\n", args[0], args[0])
	return nil
}

func (p *player) cmdPasswd(ctx context.Context, args []string) error {
	if err := p.requireLogin(); err != nil {
		return err
	}
	if len(args) != 2 {
		return errors.New("usage: passwd <old> <new>")
	}
	if err := p.lib.ChangePassword(ctx, args[0], args[1]); err != nil {
		return err
	}
	p.printf("Password changed\n")
	return nil
}

func (p *player) cmdWhoami(ctx context.Context, _ []string) error {
	if p.sess.Phase() != state.PhaseLoggedIn {
		p.printf("%s\n", p.sess.Phase())
		return nil
	}
	user, err := p.sess.Restore(ctx)
	if err != nil {
		return err
	}
	p.printf("%s (%s)\n", user.Username, user.ID)
	return nil
}

// parseIndex parses a 1-based index into a listing of n items.
func parseIndex(args []string, n int) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("index required")
	}
	if n == 0 {
		return 0, errors.New("nothing listed")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 1 || i > n {
		return 0, errors.Newf("index must be between 1 and %d", n)
	}
	return i - 1, nil
}

// parseSeek parses "42", "42%" or "m:ss" into a ratio of the current duration.
func parseSeek(arg string, s playback.Session) (float64, error) {
	if mins, secs, ok := strings.Cut(arg, ":"); ok {
		if !s.DurationKnown || s.Duration <= 0 {
			return 0, errors.New("duration is not known yet")
		}
		m, err1 := strconv.Atoi(mins)
		sec, err2 := strconv.Atoi(secs)
		if err1 != nil || err2 != nil || m < 0 || sec < 0 || sec >= 60 {
			return 0, errors.Newf("invalid position %q", arg)
		}
		pos := time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
		return float64(pos) / float64(s.Duration), nil
	}

	pct, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
	if err != nil {
		return 0, errors.Newf("invalid percent %q", arg)
	}
	return pct / 100, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
