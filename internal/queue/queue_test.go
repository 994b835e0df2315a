package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/harmony-go/internal/media"
)

func testSong(name string) media.Song {
	return media.NewSong(media.Metadata{
		Ref:     media.Ref{Provider: media.ProviderYouTube, ID: "abcdefghijk", Format: media.DefaultFormat},
		Title:   name,
		Channel: "Test Channel",
	})
}

func pendingNames(q *Queue) []string {
	names := []string{}
	for _, song := range q.Snapshot().Pending {
		names = append(names, song.DisplayName)
	}
	return names
}

func TestQueue_New_Empty(t *testing.T) {
	q := New()

	require.Nil(t, q.Current())
	require.Equal(t, 0, q.Len())
	require.False(t, q.Looping())
	require.Empty(t, q.Upcoming(5))
}

func TestQueue_AddSong_HeadInsertion(t *testing.T) {
	q := New()

	q.AddSong(testSong("A"), true)
	q.AddSong(testSong("B"), false)
	q.AddSong(testSong("C"), true)

	require.Equal(t, []string{"C by Test Channel", "A by Test Channel", "B by Test Channel"}, pendingNames(q))
}

func TestQueue_AddSong_DoesNotTouchCurrent(t *testing.T) {
	q := New()
	a := testSong("A")
	q.AddSong(a, false)
	q.FinishCurrentAndAdvance()

	q.AddSong(testSong("B"), true)

	require.Equal(t, a.ID, q.Current().ID)
	require.Equal(t, 1, q.Len())
}

func TestQueue_FinishCurrentAndAdvance_FromIdle(t *testing.T) {
	q := New()
	a := testSong("A")
	q.AddSong(a, false)

	transition := q.FinishCurrentAndAdvance()

	require.Nil(t, transition.Cleanup)
	require.NotNil(t, transition.Play)
	require.Equal(t, a.ID, transition.Play.ID)
	require.Equal(t, a.ID, q.Current().ID)
	require.Equal(t, 0, q.Len())
}

func TestQueue_FinishCurrentAndAdvance_ToIdle(t *testing.T) {
	q := New()
	a := testSong("A")
	q.AddSong(a, false)
	q.FinishCurrentAndAdvance()

	transition := q.FinishCurrentAndAdvance()

	require.NotNil(t, transition.Cleanup)
	require.Equal(t, a.ID, transition.Cleanup.ID)
	require.Nil(t, transition.Play)
	require.True(t, transition.Idle())
	require.Nil(t, q.Current())
}

func TestQueue_FinishCurrentAndAdvance_EmptyQueue(t *testing.T) {
	q := New()

	transition := q.FinishCurrentAndAdvance()

	require.Nil(t, transition.Cleanup)
	require.Nil(t, transition.Play)
}

func TestQueue_FinishCurrentAndAdvance_Looping(t *testing.T) {
	q := New()
	a := testSong("A")
	q.AddSong(a, false)
	q.AddSong(testSong("B"), false)
	q.FinishCurrentAndAdvance()
	require.True(t, q.ToggleLooping())

	for i := 0; i < 5; i++ {
		transition := q.FinishCurrentAndAdvance()
		require.Nil(t, transition.Cleanup)
		require.NotNil(t, transition.Play)
		require.Equal(t, a.ID, transition.Play.ID)
		require.True(t, transition.Replay())
	}
	require.Equal(t, 1, q.Len())

	require.False(t, q.ToggleLooping())
	transition := q.FinishCurrentAndAdvance()
	require.Equal(t, a.ID, transition.Cleanup.ID)
	require.Equal(t, "B by Test Channel", transition.Play.DisplayName)
}

func TestQueue_FinishCurrentAndAdvance_LoopingWithoutCurrent(t *testing.T) {
	q := New()
	q.ToggleLooping()
	b := testSong("B")
	q.AddSong(b, false)

	transition := q.FinishCurrentAndAdvance()

	require.Nil(t, transition.Cleanup)
	require.Equal(t, b.ID, transition.Play.ID)
}

func TestQueue_SkipCurrent_IgnoresLooping(t *testing.T) {
	q := New()
	a := testSong("A")
	b := testSong("B")
	q.AddSong(a, false)
	q.FinishCurrentAndAdvance()
	q.AddSong(b, true)
	q.ToggleLooping()

	transition := q.SkipCurrent()

	require.Equal(t, a.ID, transition.Cleanup.ID)
	require.Equal(t, b.ID, transition.Play.ID)
	require.True(t, q.Looping())
}

func TestQueue_Clear_KeepsCurrent(t *testing.T) {
	q := New()
	a := testSong("A")
	q.AddSong(a, false)
	q.FinishCurrentAndAdvance()
	q.AddSong(testSong("B"), false)
	q.AddSong(testSong("C"), false)

	removed := q.Clear()

	require.Equal(t, 2, removed)
	require.Equal(t, 0, q.Len())
	require.Equal(t, a.ID, q.Current().ID)
}

func TestQueue_Upcoming_Capped(t *testing.T) {
	q := New()
	for i := 0; i < 7; i++ {
		q.AddSong(testSong(fmt.Sprintf("S%d", i)), false)
	}

	upcoming := q.Upcoming(5)

	require.Len(t, upcoming, 5)
	for i, song := range upcoming {
		require.Equal(t, fmt.Sprintf("S%d by Test Channel", i), song.DisplayName)
	}
	require.Equal(t, 7, q.Len())
	require.Len(t, q.Upcoming(10), 7)
}

func TestQueue_Upcoming_ReturnsCopy(t *testing.T) {
	q := New()
	q.AddSong(testSong("A"), false)

	upcoming := q.Upcoming(1)
	upcoming[0].DisplayName = "mutated"

	require.Equal(t, "A by Test Channel", q.Upcoming(1)[0].DisplayName)
}

func TestQueue_DropCurrent(t *testing.T) {
	q := New()
	a := testSong("A")
	q.AddSong(a, false)
	q.FinishCurrentAndAdvance()

	require.False(t, q.DropCurrent("other"))
	require.NotNil(t, q.Current())

	require.True(t, q.DropCurrent(a.ID))
	require.Nil(t, q.Current())

	transition := q.FinishCurrentAndAdvance()
	require.Nil(t, transition.Cleanup)
	require.Nil(t, transition.Play)
}

// Current is nil exactly when pending is empty once every enqueue that found the
// queue idle has been followed by an advance.
func TestQueue_CurrentNilOnlyWhenPendingEmpty(t *testing.T) {
	q := New()
	ops := []string{"add", "add", "finish", "add", "finish", "finish", "finish", "add", "finish", "finish"}

	for _, op := range ops {
		switch op {
		case "add":
			wasIdle := q.Current() == nil
			q.AddSong(testSong("x"), false)
			if wasIdle {
				q.FinishCurrentAndAdvance()
			}
		case "finish":
			q.FinishCurrentAndAdvance()
		}
		snap := q.Snapshot()
		if snap.Current == nil {
			require.Empty(t, snap.Pending)
		}
	}
}

func TestQueue_FinishCurrentAndAdvance_OneCleanupPerSong(t *testing.T) {
	q := New()
	songs := []media.Song{testSong("A"), testSong("B"), testSong("C")}
	for _, song := range songs {
		q.AddSong(song, false)
	}

	cleaned := map[string]int{}
	for i := 0; i < 6; i++ {
		transition := q.FinishCurrentAndAdvance()
		if transition.Cleanup != nil {
			cleaned[transition.Cleanup.ID]++
		}
	}

	require.Len(t, cleaned, 3)
	for _, song := range songs {
		require.Equal(t, 1, cleaned[song.ID])
	}
}

func TestQueue_AddSongIfCurrent(t *testing.T) {
	q := New()
	a, b, c := testSong("A"), testSong("B"), testSong("C")

	require.False(t, q.AddSongIfCurrent(a, false))
	require.Equal(t, 0, q.Len())

	q.AddSong(a, false)
	q.FinishCurrentAndAdvance()

	require.True(t, q.AddSongIfCurrent(b, false))
	require.True(t, q.AddSongIfCurrent(c, true))
	require.Equal(t, []string{"C by Test Channel", "B by Test Channel"}, pendingNames(q))
}

func TestQueue_Start(t *testing.T) {
	q := New()
	a := testSong("A")

	transition, started := q.Start(a, false)

	require.True(t, started)
	require.Nil(t, transition.Cleanup)
	require.Equal(t, a.ID, transition.Play.ID)
	require.Equal(t, a.ID, q.Current().ID)
	require.Equal(t, 0, q.Len())
}

func TestQueue_Start_BehindCurrent(t *testing.T) {
	q := New()
	_, started := q.Start(testSong("A"), false)
	require.True(t, started)

	transition, started := q.Start(testSong("B"), false)

	require.False(t, started)
	require.True(t, transition.Idle())
	require.Equal(t, []string{"B by Test Channel"}, pendingNames(q))
}

func TestQueue_Start_AfterClear(t *testing.T) {
	q := New()
	q.AddSong(testSong("stale"), false)
	q.Clear()

	transition, started := q.Start(testSong("A"), true)

	require.True(t, started)
	require.Equal(t, "A by Test Channel", transition.Play.DisplayName)
	require.Empty(t, pendingNames(q))
}
