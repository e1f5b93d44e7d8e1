package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns"
)

// Keys under which a subdomain binding is kept, in both stores.
const (
	KeyFullSubdomain = "SD-FullSubDomain"
	KeyZoneID        = "SD-ZoneId"
	KeyDNSProvider   = "SD-DnsProvider"
)

// BindingKeys lists the binding keys in a fixed order.
var BindingKeys = []string{KeyFullSubdomain, KeyZoneID, KeyDNSProvider}

// ErrMalformedBinding is returned when a stored binding cannot be decoded.
var ErrMalformedBinding = errors.New("malformed subdomain binding")

// Instance is a hosted service as seen by the lifecycle handlers. The hosting
// platform owns it; handlers only read and write its stores.
type Instance struct {
	ID        string
	IPAddress string
	Variables Store // live, reset by reinstall and game switch
	AppData   Store // persistent
}

// NewInstance returns an instance with empty in-memory stores.
func NewInstance(id, ipAddress string) *Instance {
	return &Instance{
		ID:        id,
		IPAddress: ipAddress,
		Variables: NewMapStore(nil),
		AppData:   NewMapStore(nil),
	}
}

// HasBinding reports whether s holds a complete binding: a non-empty full
// subdomain plus zone and provider entries. Partial bindings count as absent.
func HasBinding(s Store) bool {
	return s.HasValueAndSet(KeyFullSubdomain) && s.Has(KeyZoneID) && s.Has(KeyDNSProvider)
}

// CopyBinding copies the binding entries from src to dst verbatim.
func CopyBinding(dst, src Store) {
	for _, k := range BindingKeys {
		dst.Set(k, src.Get(k))
	}
}

// RemoveBinding deletes the binding entries from s.
func RemoveBinding(s Store) {
	for _, k := range BindingKeys {
		s.Remove(k)
	}
}

// ReadBinding decodes the binding held in s.
func ReadBinding(s Store) (dns.Binding, error) {
	if !HasBinding(s) {
		return dns.Binding{}, fmt.Errorf("%w: incomplete", ErrMalformedBinding)
	}
	raw := strings.TrimSpace(s.Get(KeyDNSProvider))
	id, err := strconv.Atoi(raw)
	if err != nil {
		return dns.Binding{}, fmt.Errorf("%w: %s %q is not a number", ErrMalformedBinding, KeyDNSProvider, raw)
	}
	return dns.Binding{
		FullSubdomain: s.Get(KeyFullSubdomain),
		ZoneID:        s.Get(KeyZoneID),
		ProviderID:    id,
	}, nil
}

// WriteBinding stores b in s.
func WriteBinding(s Store, b dns.Binding) {
	s.Set(KeyFullSubdomain, b.FullSubdomain)
	s.Set(KeyZoneID, b.ZoneID)
	s.Set(KeyDNSProvider, strconv.Itoa(b.ProviderID))
}
