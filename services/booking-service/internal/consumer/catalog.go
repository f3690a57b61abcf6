package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const CatalogTopic = "business.catalog.updated.v1"

// CatalogStore applies a catalog update once per event id.
type CatalogStore interface {
	ApplyCatalog(ctx context.Context, eventID string, upd model.CatalogUpdate) (bool, error)
}

type catalogEvent struct {
	BusinessID string `json:"business_id"`
	// StaffID is empty when the hours belong to the business calendar itself.
	StaffID      string `json:"staff_id"`
	WorkingHours []struct {
		DayOfWeek int    `json:"day_of_week"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	} `json:"working_hours"`
	Services []struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
		PriceCents      int64  `json:"price_cents"`
		Active          *bool  `json:"active"`
	} `json:"services"`
}

func CatalogHandler(store CatalogStore, logger *slog.Logger) Handler {
	return func(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error {
		upd, err := decodeCatalog(msg.Value)
		if err != nil {
			return err
		}
		eventID := meta.EventID
		if eventID == "" {
			// Producers without an event id still dedupe on redelivery of the same offset.
			eventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
		}
		applied, err := store.ApplyCatalog(ctx, eventID, upd)
		if errors.Is(err, model.ErrForeignEntity) {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err != nil {
			return err
		}
		if !applied {
			logger.InfoContext(ctx, "duplicate event ignored", "event_id", eventID, "event_type", meta.EventType)
			return nil
		}
		logger.InfoContext(ctx, "catalog applied",
			"event_id", eventID, "entity_id", upd.EntityID,
			"working_days", len(upd.WorkingHours), "services", len(upd.Services))
		return nil
	}
}

func decodeCatalog(body []byte) (model.CatalogUpdate, error) {
	var evt catalogEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return model.CatalogUpdate{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.BusinessID == "" {
		return model.CatalogUpdate{}, fmt.Errorf("%w: business_id is required", ErrMalformed)
	}
	upd := model.CatalogUpdate{BusinessID: evt.BusinessID, EntityID: evt.BusinessID}
	if evt.StaffID != "" {
		upd.EntityID = evt.StaffID
	}

	seen := map[int]bool{}
	for _, wh := range evt.WorkingHours {
		if wh.DayOfWeek < 0 || wh.DayOfWeek > 6 {
			return model.CatalogUpdate{}, fmt.Errorf("%w: day_of_week %d out of range", ErrMalformed, wh.DayOfWeek)
		}
		if seen[wh.DayOfWeek] {
			return model.CatalogUpdate{}, fmt.Errorf("%w: more than one window on day %d", ErrMalformed, wh.DayOfWeek)
		}
		seen[wh.DayOfWeek] = true
		if _, err := availability.ParseClock(wh.StartTime); err != nil {
			return model.CatalogUpdate{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if _, err := availability.ParseClock(wh.EndTime); err != nil {
			return model.CatalogUpdate{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		upd.WorkingHours = append(upd.WorkingHours, model.WorkingHours{
			EntityID:   upd.EntityID,
			BusinessID: upd.BusinessID,
			DayOfWeek:  time.Weekday(wh.DayOfWeek),
			StartTime:  wh.StartTime,
			EndTime:    wh.EndTime,
		})
	}
	for _, s := range evt.Services {
		if s.ID == "" || s.DurationMinutes <= 0 || s.PriceCents < 0 {
			return model.CatalogUpdate{}, fmt.Errorf("%w: invalid service %q", ErrMalformed, s.ID)
		}
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		upd.Services = append(upd.Services, model.Service{
			ID:              s.ID,
			BusinessID:      evt.BusinessID,
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
			PriceCents:      s.PriceCents,
			Active:          active,
		})
	}
	return upd, nil
}
