package domain

import "testing"

func TestHeartRateSampleValid(t *testing.T) {
	cases := []struct {
		bpm  uint16
		want bool
	}{
		{29, false},
		{30, true},
		{72, true},
		{240, true},
		{241, false},
		{0, false},
	}
	for _, c := range cases {
		s := HeartRateSample{BPM: c.bpm}
		if s.Valid() != c.want {
			t.Errorf("Valid() for %d BPM = %v, want %v", c.bpm, s.Valid(), c.want)
		}
	}
}

func TestConnectionStateString(t *testing.T) {
	if StateReconnecting.String() != "reconnecting" {
		t.Fatalf("got %q", StateReconnecting.String())
	}
	if ConnectionState(99).String() != "unknown" {
		t.Fatalf("got %q", ConnectionState(99).String())
	}
}

func TestSessionActive(t *testing.T) {
	s := Session{ID: "01J"}
	if !s.Active() {
		t.Fatal("session without EndedAt should be active")
	}
}
