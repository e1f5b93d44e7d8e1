package config

import (
	"fmt"
	"os"
)

// ProviderEntry configures one DNS provider instance. ID is the number stored
// in a service's SD-DnsProvider variable; Type selects the registered backend.
type ProviderEntry struct {
	ID       int               `yaml:"id"`
	Type     string            `yaml:"type"`
	Settings map[string]string `yaml:"settings"`
}

// validateProviders checks ids and types and expands ${ENV_VAR} references
// in setting values.
func validateProviders(entries []ProviderEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("provider config: at least one provider is required")
	}

	seen := make(map[int]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.ID <= 0 {
			return fmt.Errorf("provider config: entry %d: 'id' must be a positive integer", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("provider config: duplicate id %d", e.ID)
		}
		seen[e.ID] = true
		if e.Type == "" {
			return fmt.Errorf("provider config: id %d: missing required field 'type'", e.ID)
		}

		for k, v := range e.Settings {
			e.Settings[k] = os.ExpandEnv(v)
		}
	}
	return nil
}
