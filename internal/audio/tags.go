package audio

import (
	"io"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"
)

// Tags is what the pre-analyze endpoint returns so the admin form can
// prefill itself from an uploaded file's embedded metadata.
type Tags struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Genre  string `json:"genre"`
}

// ReadTags extracts embedded tags from an uploaded stream. A file with
// no readable tags is not an error; callers fall back to the filename.
func ReadTags(r io.ReadSeeker) (Tags, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return Tags{}, err
	}
	return Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Genre:  m.Genre(),
	}, nil
}

// StampMP3 writes the station identity into the transcoded loop so a
// downloaded asset still says what it is. The transcode strips all
// source tags first.
func StampMP3(path, title, host string) error {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer t.Close()

	t.SetTitle(title)
	if host != "" {
		t.SetArtist(host)
	}
	t.SetAlbum("offley.fm")
	return t.Save()
}
