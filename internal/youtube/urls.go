package youtube

import (
	"regexp"

	"github.com/strefethen/harmony-go/internal/media"
)

var urlPattern = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

// ExtractVideoID pulls the video id out of a YouTube URL. Anything that is not
// exactly 11 alphanumeric characters in the id position is rejected.
func ExtractVideoID(text string) (string, bool) {
	match := urlPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	id := match[2]
	if !media.ValidID(id) {
		return "", false
	}
	return id, true
}
