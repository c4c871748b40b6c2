package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
)

// DefaultModel is recorded when an inventory record names no model.
const DefaultModel = "Chromebook"

// InventoryPage is one page of records from an inventory connector.
type InventoryPage struct {
	Source  string             `json:"source"`
	Devices []events.Inventory `json:"devices"`
}

// InventoryResult summarises one synced page.
type InventoryResult struct {
	Received int `json:"received"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// SyncInventory upserts every device in page. Records without a serial number
// are skipped; the asset tag defaults to the serial.
func (p *Pipeline) SyncInventory(ctx context.Context, schoolID int64, apiKey string, page *InventoryPage) (*InventoryResult, error) {
	if err := p.Authenticate(ctx, schoolID, apiKey); err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: empty page", ErrInputMalformed)
	}
	source := strings.TrimSpace(page.Source)
	if source == "" {
		source = events.SourceGoogle
	}

	res := &InventoryResult{Received: len(page.Devices)}
	for _, raw := range page.Devices {
		inv := cleanInventory(raw)
		if inv.SerialNumber == "" {
			res.Skipped++
			continue
		}

		rec := database.InventoryRecord{
			SchoolID:     schoolID,
			Source:       source,
			ExternalID:   inv.ExternalID,
			SerialNumber: inv.SerialNumber,
			AssetTag:     inv.AssetTag,
			DeviceType:   inv.Model,
			LastSeen:     parseSyncTime(inv.LastSync),
		}
		ev := events.NormalizeInventory(schoolID, source, inv, p.now())

		device, created, err := p.store.SyncInventoryDevice(ctx, rec, ev)
		if err != nil {
			p.metrics.RecordError()
			return res, fmt.Errorf("failed to sync device %s: %w", inv.SerialNumber, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		slog.Debug("Inventory device synced", "device_id", device.ID, "serial", inv.SerialNumber, "created", created)
	}

	p.metrics.AddCustom("inventory_devices_synced", uint64(res.Created+res.Updated))
	slog.Info("Inventory page synced",
		"school_id", schoolID,
		"source", source,
		"received", res.Received,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
	)
	return res, nil
}

func cleanInventory(inv events.Inventory) events.Inventory {
	out := events.Inventory{
		ExternalID:   strings.TrimSpace(inv.ExternalID),
		SerialNumber: strings.TrimSpace(inv.SerialNumber),
		AssetTag:     strings.TrimSpace(inv.AssetTag),
		Model:        strings.TrimSpace(inv.Model),
		OSVersion:    strings.TrimSpace(inv.OSVersion),
		OrgUnitPath:  strings.TrimSpace(inv.OrgUnitPath),
		LastSync:     strings.TrimSpace(inv.LastSync),
	}
	if out.AssetTag == "" {
		out.AssetTag = out.SerialNumber
	}
	if out.Model == "" {
		out.Model = DefaultModel
	}
	return out
}

func parseSyncTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
