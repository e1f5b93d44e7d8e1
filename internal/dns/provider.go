package dns

import "context"

// SearchType selects how a zone is looked up.
type SearchType int

const (
	SearchByName SearchType = iota
	SearchByID
)

func (s SearchType) String() string {
	switch s {
	case SearchByName:
		return "name"
	case SearchByID:
		return "id"
	default:
		return "unknown"
	}
}

// Zone is a DNS zone as known to a provider.
type Zone struct {
	ID   string
	Name string // registrable domain, e.g. "example.com"
}

// Record represents a DNS record to be created inside a zone.
type Record struct {
	Name  string // label relative to the zone, e.g. "mc" for "mc.example.com"
	Type  string // "A", "AAAA", "CNAME"
	Value string // IP address or target
	TTL   int    // 0 = provider default
}

// Binding ties a subdomain to the zone and provider it was created in.
type Binding struct {
	FullSubdomain string // e.g. "mc.example.com"
	ZoneID        string
	ProviderID    int
}

// Provider is the interface that DNS providers must implement.
type Provider interface {
	ZoneExists(ctx context.Context, domain string, by SearchType) (bool, error)
	GetZone(ctx context.Context, domain string, by SearchType) (Zone, error)
	CreateRecord(ctx context.Context, zoneID string, record Record) error
	// DeleteRecord removes the record described by binding. It returns an
	// error wrapping ErrNotFound when no such record exists.
	DeleteRecord(ctx context.Context, binding Binding) error
}
