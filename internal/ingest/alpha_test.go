package ingest

import (
	"strings"
	"testing"
)

const sampleCSV = `
"Legs · Day 2 · Week 4 · Push-Pull-Legs";"2026-02-19 4:54 h";"1:02 hr"
"1. Hack Squats · Machine · 8 reps";"WU1 · 37,5 kg · 9 reps<br>WU2 · 72,5 kg · 7 reps"
#;KG;REPS;RIR
1;115;8;1
2;115;10;1
3;115;10;1
"2. Sumo Squats · Smith machine · 10 reps";"WU1 · 35 kg · 8 reps"
#;KG;REPS;RIR
1;70;8;1
2;70;12;1
"3. Hyperextensions on Roman Chair · Bodyweight · 10 reps";"WU1 · +0 kg · 8 reps"
#;KG;REPS;RIR
1;+35;10;0
2;+35;9;1
3;+35;10;0
"4. Reverse Lunges · Dumbbells · 10 reps"
#;KG;REPS;RIR
1;10;10;1
2;10;10;1
3;10;10;0
"5. Standing Calf Raises · Machine · 12 reps";"WU1 · 47,5 kg · 8 reps"
#;KG;REPS;RIR
1;157,5;11;1
2;157,5;11;0
3;157,5;10;0
"6. Hanging Leg Raises · Bodyweight · 12 reps · 2 dropsets"
#;KG;REPS;RIR
1;+0;12;1
2;+0;12;1
3;+0;12;0

"Push · Day 1 · Week 4 · Push-Pull-Legs";"2026-02-17 16:04 h";"1:12 hr"
"1. Bench Press · Barbell · 6 reps";"WU1 · 22,5 kg · 10 reps<br>WU2 · 47,5 kg · 8 reps<br>WU3 · 77,5 kg · 6 reps"
#;KG;REPS;RIR
1;102,5;6;0
2;102,5;6;0
3;100;6;0,5
`

// TestParseAlphaSessions parses a two-session export end to end.
func TestParseAlphaSessions(t *testing.T) {
	sessions, err := ParseAlpha(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}

	s1 := sessions[0]
	if s1.Name != "Legs · Day 2 · Week 4 · Push-Pull-Legs" {
		t.Errorf("s1.Name = %q", s1.Name)
	}
	if s1.Duration != "1:02 hr" {
		t.Errorf("s1.Duration = %q", s1.Duration)
	}
	if got := s1.Date.Format("2006-01-02 15:04"); got != "2026-02-19 04:54" {
		t.Errorf("s1.Date = %s", got)
	}
	if len(s1.Exercises) != 6 {
		t.Fatalf("s1 exercises = %d, want 6", len(s1.Exercises))
	}

	tests := []struct {
		name, equipment string
		targetReps      int
		sets, working   int
	}{
		{"Hack Squats", "Machine", 8, 5, 3},
		{"Sumo Squats", "Smith machine", 10, 3, 2},
		{"Hyperextensions on Roman Chair", "Bodyweight", 10, 4, 3},
		{"Reverse Lunges", "Dumbbells", 10, 3, 3},
		{"Standing Calf Raises", "Machine", 12, 4, 3},
		{"Hanging Leg Raises", "Bodyweight", 12, 3, 3},
	}
	for i, tt := range tests {
		ex := s1.Exercises[i]
		if ex.Number != i+1 {
			t.Errorf("exercise %d: Number = %d", i, ex.Number)
		}
		if ex.Name != tt.name {
			t.Errorf("exercise %d: Name = %q, want %q", i, ex.Name, tt.name)
		}
		if ex.Equipment != tt.equipment {
			t.Errorf("%s: Equipment = %q, want %q", tt.name, ex.Equipment, tt.equipment)
		}
		if ex.TargetReps != tt.targetReps {
			t.Errorf("%s: TargetReps = %d, want %d", tt.name, ex.TargetReps, tt.targetReps)
		}
		if len(ex.Sets) != tt.sets {
			t.Errorf("%s: sets = %d, want %d", tt.name, len(ex.Sets), tt.sets)
		}
		if n := len(ex.WorkingSets()); n != tt.working {
			t.Errorf("%s: working sets = %d, want %d", tt.name, n, tt.working)
		}
	}

	s2 := sessions[1]
	if got := s2.Date.Format("2006-01-02 15:04"); got != "2026-02-17 16:04" {
		t.Errorf("s2.Date = %s", got)
	}
	bench := s2.Exercises[0].WorkingSets()
	if len(bench) != 3 {
		t.Fatalf("bench working sets = %d, want 3", len(bench))
	}
	if bench[0].WeightKg != 102.5 || bench[0].Reps != 6 {
		t.Errorf("bench set 1 = %+v", bench[0])
	}
	if bench[2].RIR != 0.5 {
		t.Errorf("bench set 3 RIR = %v, want 0.5", bench[2].RIR)
	}
}

// TestParseDecimal covers comma decimals and garbage input.
func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"102,5", 102.5},
		{"0,5", 0.5},
		{"80", 80},
		{" 12.25 ", 12.25},
		{"n/a", 0},
	}
	for _, tt := range tests {
		if got := parseDecimal(tt.in); got != tt.want {
			t.Errorf("parseDecimal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestParseWeight verifies the +N added-load notation.
func TestParseWeight(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		plus bool
	}{
		{"+35", 35, true},
		{"+0", 0, true},
		{"+12,5", 12.5, true},
		{"157,5", 157.5, false},
	}
	for _, tt := range tests {
		got, plus := parseWeight(tt.in)
		if got != tt.want || plus != tt.plus {
			t.Errorf("parseWeight(%q) = %v, %v; want %v, %v", tt.in, got, plus, tt.want, tt.plus)
		}
	}
}

// TestParseWarmups verifies warmup extraction from the exercise header.
func TestParseWarmups(t *testing.T) {
	sets := parseWarmups("WU1 · 37,5 kg · 9 reps<br>WU2 · 72,5 kg · 7 reps")
	if len(sets) != 2 {
		t.Fatalf("warmup sets = %d, want 2", len(sets))
	}
	if sets[0].WeightKg != 37.5 || sets[0].Reps != 9 || !sets[0].Warmup {
		t.Errorf("wu1 = %+v", sets[0])
	}
	if sets[1].Number != 2 || sets[1].WeightKg != 72.5 {
		t.Errorf("wu2 = %+v", sets[1])
	}

	bw := parseWarmups("WU1 · +0 kg · 8 reps")
	if len(bw) != 1 || !bw[0].BodyweightPlus {
		t.Errorf("bodyweight warmup = %+v", bw)
	}

	if got := parseWarmups(""); got != nil {
		t.Errorf("parseWarmups(\"\") = %+v, want nil", got)
	}
}

// TestParseAlphaEmpty verifies that empty input yields no sessions.
func TestParseAlphaEmpty(t *testing.T) {
	sessions, err := ParseAlpha(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(sessions))
	}
}

// TestParseAlphaOrphans rejects sets and exercises outside a session.
func TestParseAlphaOrphans(t *testing.T) {
	inputs := map[string]string{
		"exercise without session": `"1. Bench Press · Barbell · 6 reps"`,
		"set without exercise":     "\"Push · Day 1\";\"2026-02-17 5:04 h\";\"1:12 hr\"\n1;100;6;0",
	}
	for name, in := range inputs {
		if _, err := ParseAlpha(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
