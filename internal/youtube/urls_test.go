package youtube

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		id    string
		ok    bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"watch url with extra params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short link with timestamp", "https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ", true},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"v path", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"ampersand v", "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"user path", "https://www.youtube.com/u/w/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"id too short", "https://youtu.be/dQw4w9WgXc", "", false},
		{"id too long", "https://youtu.be/dQw4w9WgXcQQ", "", false},
		{"id with dash", "https://youtu.be/dQw4w9-gXcQ", "", false},
		{"id with underscore", "https://youtu.be/dQw4w9_gXcQ", "", false},
		{"plain query", "lo-fi beats", "", false},
		{"bare id is a query", "dQw4w9WgXcQ", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractVideoID(tt.input)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.id, id)
		})
	}
}
