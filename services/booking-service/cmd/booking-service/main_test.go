package main

import (
	"testing"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/memstore"
)

func TestMemoryDriverServesAvailability(t *testing.T) {
	var store backend = memstore.New()
	if availability.NewService(store, nil, nil).Location() == nil {
		t.Fatal("expected a default location")
	}
}
