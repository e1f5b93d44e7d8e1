package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/cachefile"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/config"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/service"
)

// Event is a service lifecycle transition reported by the hosting platform.
type Event string

const (
	BeforeReinstall  Event = "BeforeReinstall"
	AfterReinstall   Event = "AfterReinstall"
	BeforeGameSwitch Event = "BeforeGameSwitch"
	AfterGameSwitch  Event = "AfterGameSwitch"
	AfterMove        Event = "AfterMove"
	AfterDelete      Event = "AfterDelete"
)

var knownEvents = []Event{BeforeReinstall, AfterReinstall, BeforeGameSwitch, AfterGameSwitch, AfterMove, AfterDelete}

// ParseEvent maps a platform command to an Event. Both the bare names and the
// platform's script names ("AfterMoveScript") are accepted.
func ParseEvent(command string) (Event, bool) {
	name := strings.TrimSuffix(strings.TrimSpace(command), "Script")
	for _, e := range knownEvents {
		if strings.EqualFold(name, string(e)) {
			return e, true
		}
	}
	return "", false
}

// Outcome messages returned to the platform.
const (
	MsgNotSet       = "Subdomain was not set."
	MsgUnknownEvent = "Unknown Service Event"
	MsgDoingNothing = "Doing nothing."
	MsgZoneMissing  = "Zone does not exist"
	MsgReset        = "Successfully reset subdomain"
)

// ErrRecreateFailed is returned when the old record was deleted but the new
// one could not be created. The live binding is left as it was, so delivering
// the same event again deletes nothing and retries the create.
var ErrRecreateFailed = errors.New("subdomain deleted but not recreated")

// ProviderLookup resolves the provider id stored in a binding.
type ProviderLookup interface {
	Lookup(id int) (dns.Provider, error)
}

// LifecycleReconciler keeps a service's subdomain in step with its lifecycle.
// It holds no per-call state; callers serialize Handle invocations.
type LifecycleReconciler struct {
	Log       logr.Logger
	Policy    config.Policy
	Providers ProviderLookup
	CacheFile string
	Metrics   *Metrics

	// NormalizeCacheFile defaults to cachefile.Normalize.
	NormalizeCacheFile func(path string) error
}

// Handle processes one lifecycle event for svc. Expected conditions come back
// as a SafeError outcome; a non-nil error means a provider or data failure the
// platform should treat as a hard failure.
func (r *LifecycleReconciler) Handle(ctx context.Context, command string, svc *service.Instance) (Outcome, error) {
	r.normalizeCacheFile()

	event, known := ParseEvent(command)
	log := r.Log.WithValues("event", command, "service", svc.ID)

	var (
		out Outcome
		err error
	)
	if known {
		out, err = r.dispatch(ctx, log, event, svc)
	} else {
		log.V(1).Info("ignoring unknown event")
		out = SafeError(MsgUnknownEvent)
	}

	r.Metrics.RecordEvent(metricEventLabel(event, known), out, err)
	if err != nil {
		log.Error(err, "event failed")
	}
	return out, err
}

func (r *LifecycleReconciler) dispatch(ctx context.Context, log logr.Logger, event Event, svc *service.Instance) (Outcome, error) {
	switch event {
	case BeforeReinstall, BeforeGameSwitch:
		if service.HasBinding(svc.Variables) {
			service.CopyBinding(svc.AppData, svc.Variables)
			log.Info("saved subdomain binding", "subdomain", svc.Variables.Get(service.KeyFullSubdomain))
		}
		return Ok(""), nil

	case AfterReinstall, AfterGameSwitch:
		if service.HasBinding(svc.AppData) {
			service.CopyBinding(svc.Variables, svc.AppData)
			service.RemoveBinding(svc.AppData)
			log.Info("restored subdomain binding", "subdomain", svc.Variables.Get(service.KeyFullSubdomain))
		}
		return Ok(""), nil

	case AfterMove:
		if !service.HasBinding(svc.Variables) {
			return SafeError(MsgNotSet), nil
		}
		return r.reset(ctx, log, svc, onMove)

	case AfterDelete:
		if !service.HasBinding(svc.Variables) {
			return SafeError(MsgNotSet), nil
		}
		return r.reset(ctx, log, svc, onDelete)
	}
	return SafeError(MsgUnknownEvent), nil
}

// trigger selects which configured policy a reset follows.
type trigger int

const (
	onMove trigger = iota
	onDelete
)

func (t trigger) action(p config.Policy) config.Action {
	if t == onMove {
		return p.AfterServiceMoveAction
	}
	return p.AfterServiceDeletionAction
}

// reset applies the move or deletion policy to a bound service. The zone id
// is always looked up again right before mutating, since the zone may have
// been recreated or migrated after the binding was captured.
func (r *LifecycleReconciler) reset(ctx context.Context, log logr.Logger, svc *service.Instance, t trigger) (Outcome, error) {
	action := t.action(r.Policy)
	if action == config.DoNothing {
		return SafeError(MsgDoingNothing), nil
	}
	log = log.WithValues("action", action.String())

	binding, err := service.ReadBinding(svc.Variables)
	if err != nil {
		return Outcome{}, err
	}
	name, err := dns.ParseName(binding.FullSubdomain)
	if err != nil {
		return Outcome{}, fmt.Errorf("parsing %s: %w", service.KeyFullSubdomain, err)
	}

	provider, err := r.Providers.Lookup(binding.ProviderID)
	if err != nil {
		return Outcome{}, err
	}

	exists, err := provider.ZoneExists(ctx, name.RegistrableDomain, dns.SearchByName)
	r.Metrics.RecordDNS("zone_exists", err)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking zone %s: %w", name.RegistrableDomain, err)
	}
	if !exists {
		log.Info("zone does not exist", "zone", name.RegistrableDomain, "provider", binding.ProviderID)
		return SafeError(MsgZoneMissing), nil
	}

	zone, err := provider.GetZone(ctx, name.RegistrableDomain, dns.SearchByName)
	r.Metrics.RecordDNS("get_zone", err)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetching zone %s: %w", name.RegistrableDomain, err)
	}

	target := binding
	target.FullSubdomain = name.FQDN()

	switch action {
	case config.DeleteSubdomain:
		if err := r.deleteSubdomain(ctx, log, provider, target, zone); err != nil {
			return Outcome{}, err
		}
		service.RemoveBinding(svc.Variables)

	case config.SetSubdomainToNewIpAddress:
		// Nothing is deleted unless the record can be recreated.
		record, err := recordFor(name.SubDomain, svc.IPAddress)
		if err != nil {
			return Outcome{}, err
		}
		if err := r.deleteSubdomain(ctx, log, provider, target, zone); err != nil {
			return Outcome{}, err
		}
		if err := r.createSubdomain(ctx, log, provider, zone, record); err != nil {
			return Outcome{}, fmt.Errorf("%w: %s: %w", ErrRecreateFailed, binding.FullSubdomain, err)
		}
		binding.ZoneID = zone.ID
		service.WriteBinding(svc.Variables, binding)

	default:
		return Outcome{}, fmt.Errorf("unsupported action %v", action)
	}

	return Ok(MsgReset), nil
}

func (r *LifecycleReconciler) normalizeCacheFile() {
	normalize := r.NormalizeCacheFile
	if normalize == nil {
		normalize = cachefile.Normalize
	}
	defer func() {
		if p := recover(); p != nil {
			r.Log.V(1).Info("cache file normalization panicked", "path", r.CacheFile, "panic", p)
		}
	}()
	if err := normalize(r.CacheFile); err != nil {
		r.Log.V(1).Info("cache file normalization failed", "path", r.CacheFile, "error", err.Error())
	}
}
