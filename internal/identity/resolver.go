// Package identity correlates partial device hints from an event with a known device.
package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
)

// Store is the device lookup surface the resolver needs.
type Store interface {
	FindDeviceBySerial(ctx context.Context, schoolID int64, serial string) (*database.Device, error)
	FindDeviceByAssetTag(ctx context.Context, schoolID int64, assetTag string) (*database.Device, error)
	FindDeviceByMAC(ctx context.Context, schoolID int64, mac string) (*database.Device, error)
	FindDeviceByIP(ctx context.Context, schoolID int64, ip string) (*database.Device, error)
}

// Hints are the identifying fields available for correlation.
type Hints struct {
	Serial   string
	AssetTag string
	MAC      string
	IP       string
}

// HintsFrom extracts resolver hints from event device hints.
func HintsFrom(h events.DeviceHints) Hints {
	return Hints{
		Serial:   strings.TrimSpace(h.SerialNumber),
		AssetTag: strings.TrimSpace(h.AssetTag),
		MAC:      strings.TrimSpace(h.MAC),
		IP:       strings.TrimSpace(h.IP),
	}
}

// Empty reports whether there is nothing to resolve with.
func (h Hints) Empty() bool {
	return h.Serial == "" && h.AssetTag == "" && h.MAC == "" && h.IP == ""
}

// Method names the step that produced a match.
type Method string

// Resolution methods, in chain order.
const (
	MethodNone     Method = ""
	MethodSerial   Method = "serial"
	MethodAssetTag Method = "asset_tag"
	MethodMAC      Method = "mac"
	MethodIP       Method = "ip"
)

// Resolver walks the fallback chain serial → asset tag → MAC → IP.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the school's device best matching hints, or nil when no
// step matches. Storage errors are returned as-is.
func (r *Resolver) Resolve(ctx context.Context, schoolID int64, hints Hints) (*database.Device, error) {
	d, _, err := r.ResolveWithMethod(ctx, schoolID, hints)
	return d, err
}

// ResolveWithMethod is Resolve that also reports which step matched.
func (r *Resolver) ResolveWithMethod(ctx context.Context, schoolID int64, hints Hints) (*database.Device, Method, error) {
	steps := []struct {
		method Method
		value  string
		lookup func(context.Context, int64, string) (*database.Device, error)
	}{
		{MethodSerial, hints.Serial, r.store.FindDeviceBySerial},
		{MethodAssetTag, hints.AssetTag, r.store.FindDeviceByAssetTag},
		{MethodMAC, hints.MAC, r.store.FindDeviceByMAC},
		{MethodIP, hints.IP, r.store.FindDeviceByIP},
	}

	for _, step := range steps {
		if step.value == "" {
			continue
		}
		d, err := step.lookup(ctx, schoolID, step.value)
		if err != nil {
			return nil, MethodNone, err
		}
		if d == nil {
			continue
		}
		if d.SchoolID != schoolID {
			// Network identities are global; never hand another tenant's device to this one.
			slog.Warn("Ignoring cross-tenant device match",
				"method", step.method,
				"school_id", schoolID,
				"device_school_id", d.SchoolID,
				"device_id", d.ID,
			)
			continue
		}
		slog.Debug("Resolved device", "method", step.method, "school_id", schoolID, "device_id", d.ID)
		return d, step.method, nil
	}

	return nil, MethodNone, nil
}
