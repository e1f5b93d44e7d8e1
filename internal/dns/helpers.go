package dns

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Name is a subdomain split at its registrable domain.
type Name struct {
	RegistrableDomain string // e.g. "example.co.uk"
	SubDomain         string // e.g. "mc" or "eu.mc"
}

// FQDN joins the name back together.
func (n Name) FQDN() string {
	return n.SubDomain + "." + n.RegistrableDomain
}

// ParseName splits an FQDN into its registrable domain and subdomain label
// using the public suffix list.
// e.g. "mc.example.com" → ("example.com", "mc")
// e.g. "eu.mc.example.co.uk" → ("example.co.uk", "eu.mc")
func ParseName(fqdn string) (Name, error) {
	fqdn = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(fqdn), "."))
	if errs := validation.IsFullyQualifiedDomainName(field.NewPath("subdomain"), fqdn); len(errs) > 0 {
		return Name{}, fmt.Errorf("%w: %s", ErrInvalidName, errs.ToAggregate().Error())
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(fqdn)
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q: %v", ErrInvalidName, fqdn, err)
	}
	if domain == fqdn {
		return Name{}, fmt.Errorf("%w: %q has no subdomain label", ErrInvalidName, fqdn)
	}

	return Name{
		RegistrableDomain: domain,
		SubDomain:         strings.TrimSuffix(fqdn, "."+domain),
	}, nil
}
