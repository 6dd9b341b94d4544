package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/shaynemeyer/radio-calico/internal/apiclient"
	"github.com/shaynemeyer/radio-calico/internal/track"
)

// termDisplay renders the now-playing and rating panels as plain lines
// on a terminal. It remembers the current track so votes can target it.
type termDisplay struct {
	out io.Writer

	mu      sync.Mutex
	current *track.Snapshot
}

func newTermDisplay(out io.Writer) *termDisplay {
	return &termDisplay{out: out}
}

// CurrentKey returns the key of the displayed track, or "" when none.
func (d *termDisplay) CurrentKey() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return ""
	}
	return d.current.Key()
}

func (d *termDisplay) ShowTrack(snap *track.Snapshot) {
	d.mu.Lock()
	changed := d.current == nil || d.current.Key() != snap.Key()
	d.current = snap
	d.mu.Unlock()

	if !changed {
		return
	}

	fmt.Fprintf(d.out, "\nNow playing: %s - %s", snap.Artist, snap.Title)
	if snap.Album != "" {
		fmt.Fprintf(d.out, " (%s", snap.Album)
		if snap.ReleaseDate != "" {
			fmt.Fprintf(d.out, ", %s", snap.ReleaseDate)
		}
		fmt.Fprint(d.out, ")")
	}
	fmt.Fprintln(d.out)

	for i, prev := range snap.Previous() {
		fmt.Fprintf(d.out, "  recent %d: %s - %s\n", i+1, prev.Artist, prev.Title)
	}
}

func (d *termDisplay) ShowTrackError() {
	fmt.Fprintln(d.out, "Track info unavailable")
}

func (d *termDisplay) ShowRatingPanel(summary *apiclient.Summary, vote int, hasVote bool) {
	yours := "none"
	if hasVote {
		switch vote {
		case 1:
			yours = "up"
		case -1:
			yours = "down"
		}
	}
	fmt.Fprintf(d.out, "Ratings: %d up / %d down (%d total), your vote: %s\n",
		summary.ThumbsUp, summary.ThumbsDown, summary.Total, yours)
}
