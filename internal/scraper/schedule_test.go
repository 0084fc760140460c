package scraper

import "testing"

func TestScheduleRightEmpty(t *testing.T) {
	// Empty window anchored at 1000; nothing in flight.
	got, ok := scheduleRight(999, 1040, nil, 12)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got.from != 1000 || got.to != 1011 {
		t.Errorf("candidate = [%d, %d], want [1000, 1011]", got.from, got.to)
	}
}

func TestScheduleRightSkipsCovered(t *testing.T) {
	covered := []interval{{from: 1000, to: 1011}, {from: 1020, to: 1031}}
	got, ok := scheduleRight(999, 2000, covered, 12)
	if !ok {
		t.Fatal("expected a candidate")
	}
	// The gap between the two covered ranges is narrower than the range
	// size.
	if got.from != 1012 || got.to != 1019 {
		t.Errorf("candidate = [%d, %d], want [1012, 1019]", got.from, got.to)
	}
}

func TestScheduleRightClipsToFinalized(t *testing.T) {
	got, ok := scheduleRight(999, 1005, nil, 12)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got.from != 1000 || got.to != 1005 {
		t.Errorf("candidate = [%d, %d], want [1000, 1005]", got.from, got.to)
	}
}

func TestScheduleRightNothingLeft(t *testing.T) {
	if _, ok := scheduleRight(1040, 1040, nil, 12); ok {
		t.Error("no candidate expected at the tip")
	}
	if _, ok := scheduleRight(999, 2000, []interval{{from: 1000, to: 2000}}, 12); ok {
		t.Error("no candidate expected when everything is covered")
	}
}

func TestScheduleLeftEmpty(t *testing.T) {
	got, ok := scheduleLeft(1000, 0, nil, 12)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got.from != 988 || got.to != 999 {
		t.Errorf("candidate = [%d, %d], want [988, 999]", got.from, got.to)
	}
}

func TestScheduleLeftSkipsCovered(t *testing.T) {
	covered := []interval{{from: 988, to: 999}}
	got, ok := scheduleLeft(1000, 0, covered, 12)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got.from != 976 || got.to != 987 {
		t.Errorf("candidate = [%d, %d], want [976, 987]", got.from, got.to)
	}
}

func TestScheduleLeftClipsToFloor(t *testing.T) {
	got, ok := scheduleLeft(5, 0, nil, 12)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got.from != 0 || got.to != 4 {
		t.Errorf("candidate = [%d, %d], want [0, 4]", got.from, got.to)
	}

	if _, ok := scheduleLeft(10, 10, nil, 12); ok {
		t.Error("no candidate expected at the floor")
	}
}

func TestScheduleLeftGapBetweenCovered(t *testing.T) {
	covered := []interval{{from: 990, to: 999}, {from: 970, to: 975}}
	got, ok := scheduleLeft(1000, 0, covered, 12)
	if !ok {
		t.Fatal("expected a candidate")
	}
	// The gap [976, 989] is wider than the range size, so it clips to the
	// 12 blocks nearest the window.
	if got.from != 978 || got.to != 989 {
		t.Errorf("candidate = [%d, %d], want [978, 989]", got.from, got.to)
	}
}
