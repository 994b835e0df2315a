package media

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// ProviderYouTube is the only provider the resolver knows about.
const ProviderYouTube = "youtube"

// DefaultFormat is the audio format requested from the downloader.
const DefaultFormat = "opus"

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9]{11}$`)

// Ref names one remote media item in one encoding.
type Ref struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
	Format   string `json:"format"`
}

// NewRef validates the identifier shape before building a Ref.
func NewRef(provider, id, format string) (Ref, error) {
	if !ValidID(id) {
		return Ref{}, fmt.Errorf("media id %q is not 11 alphanumeric characters", id)
	}
	if format == "" {
		format = DefaultFormat
	}
	return Ref{Provider: provider, ID: id, Format: format}, nil
}

// ValidID reports whether id has the provider's identifier shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Link is the public short link for the item.
func (r Ref) Link() string {
	return "https://youtu.be/" + r.ID
}

func (r Ref) String() string {
	return r.Provider + ":" + r.ID + "." + r.Format
}

// Metadata is what survives content policy checks. Live and duration data are not carried.
type Metadata struct {
	Ref     Ref    `json:"ref"`
	Title   string `json:"title"`
	Channel string `json:"channel"`
}

// Song is a queue element. Build it with NewSong and never mutate it.
type Song struct {
	ID          string `json:"id"`
	Ref         Ref    `json:"ref"`
	DisplayName string `json:"display_name"`
	Format      string `json:"format"`
}

// NewSong builds the queue element for a resolved item.
func NewSong(meta Metadata) Song {
	return Song{
		ID:          uuid.NewString(),
		Ref:         meta.Ref,
		DisplayName: fmt.Sprintf("%s by %s", meta.Title, meta.Channel),
		Format:      meta.Ref.Format,
	}
}
