package scan

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
)

func historyBatch(ids ...int) []tg.MessageClass {
	batch := make([]tg.MessageClass, len(ids))
	for i, id := range ids {
		batch[i] = &tg.Message{ID: id}
	}

	return batch
}

func TestFilterBatch(t *testing.T) {
	tests := []struct {
		name        string
		batch       []tg.MessageClass
		cursor      int64
		capacity    int
		wantIDs     []int
		wantOffset  int
		wantReached bool
	}{
		{
			name:       "all above cursor",
			batch:      historyBatch(105, 104, 103),
			cursor:     100,
			capacity:   10,
			wantIDs:    []int{105, 104, 103},
			wantOffset: 103,
		},
		{
			name:        "stops at cursor",
			batch:       historyBatch(105, 104, 100, 99),
			cursor:      100,
			capacity:    10,
			wantIDs:     []int{105, 104},
			wantOffset:  100,
			wantReached: true,
		},
		{
			name:        "cursor mid-batch ends the walk",
			batch:       historyBatch(103, 102, 101),
			cursor:      102,
			capacity:    10,
			wantIDs:     []int{103},
			wantOffset:  102,
			wantReached: true,
		},
		{
			name:       "respects remaining capacity",
			batch:      historyBatch(105, 104, 103),
			cursor:     100,
			capacity:   2,
			wantIDs:    []int{105, 104},
			wantOffset: 103,
		},
		{
			name:       "fresh channel selects everything",
			batch:      historyBatch(3, 2, 1),
			cursor:     0,
			capacity:   10,
			wantIDs:    []int{3, 2, 1},
			wantOffset: 1,
		},
		{
			name: "skips non-message entries",
			batch: []tg.MessageClass{
				&tg.Message{ID: 105},
				&tg.MessageEmpty{ID: 104},
				&tg.Message{ID: 103},
			},
			cursor:     100,
			capacity:   10,
			wantIDs:    []int{105, 103},
			wantOffset: 103,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, offset, reached := filterBatch(tt.batch, tt.cursor, tt.capacity, 0)

			ids := make([]int, 0, len(selected))
			for _, msg := range selected {
				ids = append(ids, msg.ID)

				// Resumption correctness: nothing at or below the cursor
				// may ever be re-collected.
				assert.Greater(t, int64(msg.ID), tt.cursor)
			}

			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantReached, reached)
		})
	}
}

func TestAdvanceCursor_AllHandled(t *testing.T) {
	items := []item{
		{id: 103, handled: true},
		{id: 101, handled: true},
		{id: 102, handled: true},
	}

	assert.Equal(t, int64(103), advanceCursor(100, items))
}

func TestAdvanceCursor_StopsAtFirstUnhandled(t *testing.T) {
	items := []item{
		{id: 101, handled: true},
		{id: 102, handled: false},
		{id: 103, handled: true},
	}

	// 103 finished, but 102 did not: committing past it would skip the
	// failed item forever.
	assert.Equal(t, int64(101), advanceCursor(100, items))
}

func TestAdvanceCursor_NothingHandled(t *testing.T) {
	items := []item{
		{id: 101, handled: false},
		{id: 102, handled: true},
	}

	assert.Equal(t, int64(100), advanceCursor(100, items))
}

func TestAdvanceCursor_EmptyPass(t *testing.T) {
	assert.Equal(t, int64(42), advanceCursor(42, nil))
}

func TestAdvanceCursor_SkipsCountAsHandled(t *testing.T) {
	items := []item{
		{id: 101, skip: true, handled: true},
		{id: 102, handled: true},
	}

	assert.Equal(t, int64(102), advanceCursor(100, items))
}

func TestAdvanceCursor_IgnoresItemsBelowPrev(t *testing.T) {
	items := []item{
		{id: 99, handled: false},
		{id: 101, handled: true},
	}

	assert.Equal(t, int64(101), advanceCursor(100, items))
}

func TestAdvanceCursor_NeverMovesBackward(t *testing.T) {
	items := []item{{id: 50, handled: true}}

	assert.Equal(t, int64(100), advanceCursor(100, items))
}
