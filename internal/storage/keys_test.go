package storage

import "testing"

// TestKeyScheme verifies the sort key formats consumed by the store.
func TestKeyScheme(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{UserPK("42"), "USER#42"},
		{WorkoutSK("2024-03-01", "upper-a"), "WORKOUT#2024-03-01#upper-a"},
		{CycleSK(7), "CYCLE#000007"},
		{AnalysisSK(12), "ANALYSIS#000012"},
		{DraftSK("lower-b"), "DRAFT#lower-b"},
		{ArchiveIndexSK(3), "000003#ARCHIVE"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("key = %q, want %q", tc.got, tc.want)
		}
	}
}

// TestPadCycleOrdersLexically verifies padded numbers sort like integers.
func TestPadCycleOrdersLexically(t *testing.T) {
	if !(PadCycle(9) < PadCycle(10)) {
		t.Errorf("PadCycle(9)=%q should sort before PadCycle(10)=%q", PadCycle(9), PadCycle(10))
	}
}

// TestParseWorkoutSK verifies round-tripping of workout sort keys.
func TestParseWorkoutSK(t *testing.T) {
	date, key, ok := ParseWorkoutSK(WorkoutSK("2024-03-01", "upper-a"))
	if !ok || date != "2024-03-01" || key != "upper-a" {
		t.Errorf("ParseWorkoutSK = (%q, %q, %v)", date, key, ok)
	}
	if _, _, ok := ParseWorkoutSK("CYCLE#CURRENT"); ok {
		t.Error("expected non-workout key to fail parsing")
	}
}
