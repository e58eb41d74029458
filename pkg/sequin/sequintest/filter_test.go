package sequintest

import "testing"

func TestMatchKey(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"orders.>", "orders.created", true},
		{"orders.>", "orders.eu.created", true},
		{"orders.>", "orders", false},
		{"orders.*", "orders.created", true},
		{"orders.*", "orders.eu.created", false},
		{"*.created", "orders.created", true},
		{"orders.created", "orders.created", true},
		{"orders.created", "orders.updated", false},
		{">", "anything.at.all", true},
		{"orders.>.x", "orders.a.x", false},
		{"", "orders", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.key, func(t *testing.T) {
			if got := MatchKey(tt.pattern, tt.key); got != tt.want {
				t.Fatalf("MatchKey(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
			}
		})
	}
}
