package scan

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_SingleOwner(t *testing.T) {
	s := NewSession()

	require.NoError(t, s.TryStart(3))
	assert.ErrorIs(t, s.TryStart(3), ErrScanInProgress)

	s.End()
	assert.NoError(t, s.TryStart(1))
}

func TestSession_ResetsOnStart(t *testing.T) {
	s := NewSession()

	require.NoError(t, s.TryStart(2))
	s.AddNewPaper()
	s.AddDuplicate()
	s.AddError("ch", "boom")
	s.End()

	require.NoError(t, s.TryStart(5))

	snapshot := s.Snapshot()
	assert.True(t, snapshot.Active)
	assert.Equal(t, 5, snapshot.ChannelsTotal)
	assert.Zero(t, snapshot.NewPapers)
	assert.Zero(t, snapshot.Duplicates)
	assert.Zero(t, snapshot.Errors)
	assert.Empty(t, snapshot.Log)
}

func TestSession_Counters(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.TryStart(1))

	s.StartChannel("medlit")
	s.AddNewPaper()
	s.AddNewPaper()
	s.AddDuplicate()
	s.AddQuiz()
	s.AddError("medlit", "download failed")
	s.FinishChannel()
	s.End()

	snapshot := s.Snapshot()
	assert.False(t, snapshot.Active)
	assert.Equal(t, 2, snapshot.NewPapers)
	assert.Equal(t, 1, snapshot.Duplicates)
	assert.Equal(t, 1, snapshot.Quizzes)
	assert.Equal(t, 1, snapshot.Errors)
	assert.Equal(t, 1, snapshot.ChannelsDone)
	assert.False(t, snapshot.FinishedAt.IsZero())
}

func TestSession_LogIsBounded(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.TryStart(1))

	for i := 0; i < sessionLogSize+25; i++ {
		s.Log("ch", fmt.Sprintf("event %d", i))
	}

	snapshot := s.Snapshot()
	require.Len(t, snapshot.Log, sessionLogSize)

	// Oldest entries are evicted first.
	assert.Equal(t, "event 25", snapshot.Log[0].Message)
	assert.Equal(t, fmt.Sprintf("event %d", sessionLogSize+24), snapshot.Log[len(snapshot.Log)-1].Message)
}
