package model

import "testing"

func TestReplayPositionCovers(t *testing.T) {
	pos := ReplayPosition{Timestamp: 100, BlockNumber: 10, LogIndex: 3}

	cases := []struct {
		block, index uint64
		want         bool
	}{
		{9, 50, true},
		{10, 2, true},
		{10, 3, true},
		{10, 4, false},
		{11, 0, false},
	}
	for _, c := range cases {
		if got := pos.Covers(c.block, c.index); got != c.want {
			t.Fatalf("Covers(%d, %d) = %t, want %t", c.block, c.index, got, c.want)
		}
	}
}
