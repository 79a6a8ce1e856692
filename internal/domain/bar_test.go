package domain

import "testing"

func TestQuoteMidAveragesBidAsk(t *testing.T) {
	q := Quote{Bid: 1.0, Ask: 1.2, Last: 5.0}
	if got := q.Mid(); got != 1.1 {
		t.Fatalf("mid = %v, want 1.1", got)
	}
}

func TestQuoteMidFallsBackToLast(t *testing.T) {
	cases := []Quote{
		{Bid: 0, Ask: 1.2, Last: 5.0},
		{Bid: 1.0, Ask: 0, Last: 5.0},
		{Bid: -1, Ask: -2, Last: 5.0},
	}
	for _, q := range cases {
		if got := q.Mid(); got != 5.0 {
			t.Fatalf("mid(%+v) = %v, want 5.0", q, got)
		}
	}
}

func TestFromDirection(t *testing.T) {
	if got := FromDirection(DirectionPut); got != Put {
		t.Fatalf("FromDirection(PUT) = %v, want %v", got, Put)
	}
	if got := FromDirection(DirectionCall); got != Call {
		t.Fatalf("FromDirection(CALL) = %v, want %v", got, Call)
	}
}
