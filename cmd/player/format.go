package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/domain/playlist"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// printTracks prints a numbered listing. liked may be nil.
func printTracks(w io.Writer, tracks []track.Track, liked func(id string) bool) {
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No tracks")
		return
	}
	for i, t := range tracks {
		mark := " "
		if liked != nil && liked(t.ID) {
			mark = "♥"
		}
		fmt.Fprintf(w, "%3d %s %-50s %6s\n", i+1, mark, t.DisplayName(), formatDuration(t.DurationHint))
	}
}

func printPlaylists(w io.Writer, playlists []playlist.Playlist) {
	if len(playlists) == 0 {
		fmt.Fprintln(w, "No playlists")
		return
	}
	for i, pl := range playlists {
		fmt.Fprintf(w, "%3d %-40s %3d tracks %8s\n", i+1, pl.Name, len(pl.Tracks), formatDuration(pl.TotalDuration()))
	}
}

// formatDuration formats d as m:ss, or "--:--" when zero.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func formatNowPlaying(s playback.Session) string {
	name := s.Track.DisplayName()
	if s.DurationKnown {
		return fmt.Sprintf("%s [%s]", name, formatDuration(s.Duration))
	}
	return name
}

// formatNotice describes a track that could not be played.
func formatNotice(n playback.Notice) string {
	msg := fmt.Sprintf("! could not play %s: %v", n.Track.DisplayName(), n.Err)
	if playback.IsStaleSource(n.Err) {
		msg += " (the media link expired or is unreachable, try 'pause' to reload)"
	}
	return msg
}

// formatStatus renders the session on one line.
func formatStatus(s playback.Session) string {
	if s.Track == nil {
		return "idle"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", s.Phase, s.Track.DisplayName())

	total := "--:--"
	if s.DurationKnown {
		total = formatDuration(s.Duration)
	}
	pos := "0:00"
	if s.Position > 0 {
		pos = formatDuration(s.Position)
	}
	fmt.Fprintf(&b, " %s/%s", pos, total)

	var flags []string
	if s.Loop {
		flags = append(flags, "loop")
	}
	if s.Shuffle {
		flags = append(flags, "shuffle")
	}
	if s.Liked {
		flags = append(flags, "liked")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(flags, ", "))
	}
	if s.Err != nil {
		fmt.Fprintf(&b, " error: %v", s.Err)
	}
	return b.String()
}
