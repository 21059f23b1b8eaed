package schedule

import "testing"

func TestGenerateSlotsFullDay(t *testing.T) {
	// 09:00-17:00 at 30 minutes: 16 slots, 09:00-09:30 .. 16:30-17:00.
	slots := GenerateSlots(540, 1020, 30)
	if len(slots) != 16 {
		t.Fatalf("got %d slots, want 16", len(slots))
	}
	if slots[0].StartMinutes != 540 || slots[0].EndMinutes != 570 {
		t.Errorf("first slot %s-%s, want 09:00-09:30",
			FormatClock(slots[0].StartMinutes), FormatClock(slots[0].EndMinutes))
	}
	last := slots[len(slots)-1]
	if last.StartMinutes != 990 || last.EndMinutes != 1020 {
		t.Errorf("last slot %s-%s, want 16:30-17:00",
			FormatClock(last.StartMinutes), FormatClock(last.EndMinutes))
	}
}

func TestGenerateSlotsTruncatesFinal(t *testing.T) {
	// 09:00-10:10 at 30 minutes: the third slot is cut to 10:10.
	slots := GenerateSlots(540, 610, 30)
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}
	last := slots[2]
	if last.StartMinutes != 600 || last.EndMinutes != 610 {
		t.Errorf("truncated slot %s-%s, want 10:00-10:10",
			FormatClock(last.StartMinutes), FormatClock(last.EndMinutes))
	}
	if last.Duration() != 10 {
		t.Errorf("truncated duration = %d, want 10", last.Duration())
	}
}

func TestGenerateSlotsEmptyWindow(t *testing.T) {
	if got := GenerateSlots(1020, 540, 30); got != nil {
		t.Errorf("inverted window produced %d slots, want none", len(got))
	}
	if got := GenerateSlots(540, 540, 30); got != nil {
		t.Errorf("zero window produced %d slots, want none", len(got))
	}
}

func TestGenerateSlotsContiguousNonOverlapping(t *testing.T) {
	slots := GenerateSlots(540, 1020, 45)
	for i := 1; i < len(slots); i++ {
		if slots[i].StartMinutes != slots[i-1].EndMinutes {
			t.Fatalf("slot %d starts at %d, previous ended at %d", i, slots[i].StartMinutes, slots[i-1].EndMinutes)
		}
	}
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if Overlaps(slots[i].StartMinutes, slots[i].EndMinutes, slots[j].StartMinutes, slots[j].EndMinutes) {
				t.Fatalf("slots %d and %d overlap", i, j)
			}
		}
	}
}
