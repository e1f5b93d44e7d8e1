package controller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns"
)

// Status is the platform-facing result class of an event.
type Status string

const (
	StatusOk        Status = "Ok"
	StatusSafeError Status = "SafeError"
)

// Outcome is what the platform sees for a handled event. A SafeError is a
// recoverable, user-visible condition and not a crash.
type Outcome struct {
	Status  Status
	Message string
}

func Ok(message string) Outcome {
	return Outcome{Status: StatusOk, Message: message}
}

func SafeError(message string) Outcome {
	return Outcome{Status: StatusSafeError, Message: message}
}

func (o Outcome) String() string {
	if o.Message == "" {
		return string(o.Status)
	}
	return fmt.Sprintf("%s: %s", o.Status, o.Message)
}

// ErrNoAddress is returned when a record must be recreated for a service
// without a usable IP address.
var ErrNoAddress = errors.New("service has no valid IP address")

// recordFor builds the address record for label pointing at ip.
func recordFor(label, ip string) (dns.Record, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return dns.Record{}, fmt.Errorf("%w: %q", ErrNoAddress, ip)
	}
	typ := "A"
	if addr.Is6() && !addr.Is4In6() {
		typ = "AAAA"
	}
	return dns.Record{Name: label, Type: typ, Value: addr.Unmap().String()}, nil
}

// deleteSubdomain removes the bound record. A record that is already gone
// counts as deleted. When the stored zone id no longer resolves, the delete
// is repeated in the current zone.
func (r *LifecycleReconciler) deleteSubdomain(ctx context.Context, log logr.Logger, p dns.Provider, b dns.Binding, current dns.Zone) error {
	err := p.DeleteRecord(ctx, b)
	if errors.Is(err, dns.ErrStaleZone) && b.ZoneID != current.ID {
		r.Metrics.RecordDNS("delete_record", err)
		log.Info("stored zone id is stale, deleting in current zone", "stored", b.ZoneID, "zone", current.ID)
		b.ZoneID = current.ID
		err = p.DeleteRecord(ctx, b)
	}
	if errors.Is(err, dns.ErrNotFound) {
		r.Metrics.RecordDNS("delete_record", nil)
		log.Info("subdomain record already absent", "subdomain", b.FullSubdomain, "zone", b.ZoneID)
		return nil
	}
	r.Metrics.RecordDNS("delete_record", err)
	if err != nil {
		return fmt.Errorf("deleting subdomain %s: %w", b.FullSubdomain, err)
	}
	log.Info("deleted subdomain record", "subdomain", b.FullSubdomain, "zone", b.ZoneID)
	return nil
}

func (r *LifecycleReconciler) createSubdomain(ctx context.Context, log logr.Logger, p dns.Provider, zone dns.Zone, rec dns.Record) error {
	err := p.CreateRecord(ctx, zone.ID, rec)
	r.Metrics.RecordDNS("create_record", err)
	if err != nil {
		return err
	}
	log.Info("created subdomain record", "name", rec.Name, "zone", zone.ID, "type", rec.Type, "value", rec.Value)
	return nil
}

func metricEventLabel(e Event, known bool) string {
	if !known {
		return "unknown"
	}
	return string(e)
}
