package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"+1 (555) 010-2030", "+15550102030"},
		{"555.010.2030", "5550102030"},
		{"0044 20 7946 0958", "00442079460958"},
		{"VERIZON", "verizon"},
		{" Bank-Alerts ", "bank-alerts"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComparable_IgnoresCountryPrefix(t *testing.T) {
	if Comparable("+1 555 010 2030") != Comparable("555-010-2030") {
		t.Errorf("expected same comparable key, got %q and %q",
			Comparable("+1 555 010 2030"), Comparable("555-010-2030"))
	}
	if Comparable("12345") != "12345" {
		t.Errorf("short numbers should be kept whole, got %q", Comparable("12345"))
	}
}

func TestEqual(t *testing.T) {
	if !Equal("+15550102030", "(555) 010-2030") {
		t.Error("expected formatted variants to be equal")
	}
	if Equal("", "") {
		t.Error("empty addresses never match")
	}
	if Equal("+15550102030", "+15550102031") {
		t.Error("different numbers must not match")
	}
}

func TestThreadID_Deterministic(t *testing.T) {
	a := ThreadID("+1 555 010 2030")
	b := ThreadID("+15550102030")
	if a != b {
		t.Errorf("expected same thread for formatted variants, got %d and %d", a, b)
	}
	if a < 1 {
		t.Errorf("thread id must be >= 1, got %d", a)
	}
	if ThreadID("+15550102031") == a {
		t.Error("different numbers should map to different threads")
	}
	if ThreadID("") != UnknownThreadID {
		t.Errorf("empty address should map to the unknown thread, got %d", ThreadID(""))
	}
}

func TestThreadID_EqualAddressesShareThread(t *testing.T) {
	pairs := [][2]string{
		{"+15551234567", "5551234567"},
		{"+1 (555) 123-4567", "555-123-4567"},
		{"+447700900123", "07700900123"},
		{"VERIFY", "verify"},
	}
	for _, p := range pairs {
		if !Equal(p[0], p[1]) {
			t.Fatalf("Equal(%q, %q) = false", p[0], p[1])
		}
		if a, b := ThreadID(p[0]), ThreadID(p[1]); a != b {
			t.Errorf("ThreadID(%q) = %d, ThreadID(%q) = %d", p[0], a, p[1], b)
		}
	}
}
