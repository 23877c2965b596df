package enums

import "testing"

func TestParseLockerSize(t *testing.T) {
	size, err := ParseLockerSize("medium")
	if err != nil {
		t.Fatalf("ParseLockerSize returned error: %v", err)
	}
	if size != LockerSizeMedium {
		t.Fatalf("expected %q, got %q", LockerSizeMedium, size)
	}

	if _, err := ParseLockerSize("gigantic"); err == nil {
		t.Fatal("expected error for unknown size")
	}
}

func TestReservationStatusIsOpen(t *testing.T) {
	cases := []struct {
		status ReservationStatus
		open   bool
	}{
		{ReservationStatusPending, true},
		{ReservationStatusActive, true},
		{ReservationStatusCompleted, false},
		{ReservationStatusCancelled, false},
		{ReservationStatusExpired, false},
	}
	for _, tc := range cases {
		if got := tc.status.IsOpen(); got != tc.open {
			t.Errorf("%s: IsOpen = %v, want %v", tc.status, got, tc.open)
		}
	}
}

func TestPaymentStatusIsValid(t *testing.T) {
	if !PaymentStatusRefunded.IsValid() {
		t.Fatal("refunded should be valid")
	}
	if PaymentStatus("settled").IsValid() {
		t.Fatal("settled should not be valid")
	}
}
