// Package track derives stable identities for now-playing tracks.
package track

import (
	"encoding/base64"
	"strings"
)

// Defaults substituted before key derivation so silent metadata still
// maps to a stable, reusable key.
const (
	UnknownArtist = "Unknown Artist"
	UnknownTitle  = "Unknown Title"
)

// maxPrevious is the number of recent tracks carried by the metadata feed.
const maxPrevious = 5

// DeriveKey returns the stable rating key for an (artist, title) pair.
// Pairs that differ only in case or punctuation derive the same key.
func DeriveKey(artist, title string) string {
	if artist == "" {
		artist = UnknownArtist
	}
	if title == "" {
		title = UnknownTitle
	}
	canonical := canonicalize(artist + "_" + title)
	return base64.StdEncoding.EncodeToString([]byte(canonical))
}

// canonicalize lower-cases the input and maps every byte outside
// [a-z0-9] to an underscore.
func canonicalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Ref is an (artist, title) reference to a recently played track.
type Ref struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// Snapshot is the now-playing state published by the metadata endpoint.
// It is replaced wholesale on every poll and never persisted.
type Snapshot struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	ReleaseDate string `json:"date"`

	PrevArtist1 string `json:"prev_artist_1"`
	PrevTitle1  string `json:"prev_title_1"`
	PrevArtist2 string `json:"prev_artist_2"`
	PrevTitle2  string `json:"prev_title_2"`
	PrevArtist3 string `json:"prev_artist_3"`
	PrevTitle3  string `json:"prev_title_3"`
	PrevArtist4 string `json:"prev_artist_4"`
	PrevTitle4  string `json:"prev_title_4"`
	PrevArtist5 string `json:"prev_artist_5"`
	PrevTitle5  string `json:"prev_title_5"`
}

// Key derives the rating key for the snapshot's current track.
func (s *Snapshot) Key() string {
	return DeriveKey(s.Artist, s.Title)
}

// Previous returns the recent-track references present in the snapshot,
// most recent first. Slots missing either field are skipped.
func (s *Snapshot) Previous() []Ref {
	pairs := [maxPrevious][2]string{
		{s.PrevArtist1, s.PrevTitle1},
		{s.PrevArtist2, s.PrevTitle2},
		{s.PrevArtist3, s.PrevTitle3},
		{s.PrevArtist4, s.PrevTitle4},
		{s.PrevArtist5, s.PrevTitle5},
	}

	refs := make([]Ref, 0, maxPrevious)
	for _, p := range pairs {
		if p[0] == "" || p[1] == "" {
			continue
		}
		refs = append(refs, Ref{Artist: p[0], Title: p[1]})
	}
	return refs
}
