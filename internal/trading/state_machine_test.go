package trading

import (
	"testing"

	"tradedesk/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{models.OrderStatusPending, models.OrderStatusOpen, true},
		{models.OrderStatusPending, models.OrderStatusRejected, true},
		{models.OrderStatusPending, models.OrderStatusFilled, true}, // simulation исполняет мгновенно
		{models.OrderStatusOpen, models.OrderStatusFilled, true},
		{models.OrderStatusOpen, models.OrderStatusCancelled, true},
		{models.OrderStatusOpen, models.OrderStatusRejected, true},

		// назад и из терминальных - запрещено
		{models.OrderStatusOpen, models.OrderStatusPending, false},
		{models.OrderStatusFilled, models.OrderStatusOpen, false},
		{models.OrderStatusFilled, models.OrderStatusCancelled, false},
		{models.OrderStatusCancelled, models.OrderStatusOpen, false},
		{models.OrderStatusRejected, models.OrderStatusPending, false},
		{"unknown", models.OrderStatusOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusInfo(t *testing.T) {
	for _, status := range []string{
		models.OrderStatusPending, models.OrderStatusOpen, models.OrderStatusFilled,
		models.OrderStatusCancelled, models.OrderStatusRejected, "bogus",
	} {
		if StatusInfo(status) == "" {
			t.Errorf("StatusInfo(%q) is empty", status)
		}
	}
}
