package ledger

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusCompleted, false},
		{StatusPending, Status("refunded"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestPageNormalize(t *testing.T) {
	if p := (Page{}).Normalize(); p.Limit != 20 || p.Offset != 0 {
		t.Fatalf("unexpected default page %+v", p)
	}
	if p := (Page{Limit: 1000, Offset: -4}).Normalize(); p.Limit != 100 || p.Offset != 0 {
		t.Fatalf("unexpected clamped page %+v", p)
	}
}

func TestTotalsNet(t *testing.T) {
	if net := (Totals{Credits: 1_000, Debits: 250}).Net(); net != 750 {
		t.Fatalf("expected 750, got %d", net)
	}
}

func TestClaimMatches(t *testing.T) {
	claim := Claim{Reference: "TOP_1", Kind: KindTopUp, Fingerprint: "abc"}
	if !claim.Matches(KindTopUp, "abc") {
		t.Fatal("identical request should match its claim")
	}
	if claim.Matches(KindTransfer, "abc") {
		t.Fatal("a different operation must not match")
	}
	if claim.Matches(KindTopUp, "abd") {
		t.Fatal("a different body must not match")
	}
}
