package schedule

// GenerateSlots discretizes [startMin,endMin) into contiguous slots of
// durationMin minutes. The final slot is truncated so it ends exactly
// at endMin. An inverted or empty window yields no slots and no error.
func GenerateSlots(startMin, endMin, durationMin int) []TimeSlot {
	if startMin >= endMin || durationMin <= 0 {
		return nil
	}
	slots := make([]TimeSlot, 0, (endMin-startMin+durationMin-1)/durationMin)
	for cur := startMin; cur < endMin; cur += durationMin {
		end := cur + durationMin
		if end > endMin {
			end = endMin
		}
		slots = append(slots, TimeSlot{StartMinutes: cur, EndMinutes: end})
	}
	return slots
}
