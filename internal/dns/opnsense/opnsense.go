package opnsense

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns"
)

const requestTimeout = 30 * time.Second

func init() {
	dns.Register("opnsense", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

var _ dns.Provider = (*Provider)(nil)

// Provider implements dns.Provider for OPNsense Unbound DNS. Unbound has no
// zone objects, so a zone is a domain: either one listed in the "zones"
// setting or, when that is empty, any domain that already carries a host
// override. The zone id is the domain name itself.
type Provider struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	defaultTTL int
	zones      map[string]bool
	client     *http.Client
	log        logr.Logger
}

// New creates an OPNsense DNS provider from the given settings map.
// Required settings: base_url, api_key, api_secret.
// Optional settings: zones (comma-separated domains), default_ttl (default 300),
// skip_tls_verify (default false).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'base_url'")
	}
	apiKey := settings["api_key"]
	if apiKey == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_key'")
	}
	apiSecret := settings["api_secret"]
	if apiSecret == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_secret'")
	}

	defaultTTL := 300
	if v := settings["default_ttl"]; v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("opnsense: invalid default_ttl %q: %w", v, err)
		}
		defaultTTL = parsed
	}

	zones := make(map[string]bool)
	for _, z := range strings.Split(settings["zones"], ",") {
		z = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(z), "."))
		if z != "" {
			zones[z] = true
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if v := settings["skip_tls_verify"]; v == "true" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Provider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		defaultTTL: defaultTTL,
		zones:      zones,
		client:     &http.Client{Transport: transport, Timeout: requestTimeout},
		log:        log,
	}, nil
}

// doRequest builds and executes an HTTP request against the OPNsense API.
func (p *Provider) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("opnsense: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := strings.TrimRight(p.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("opnsense: build request: %w", err)
	}

	req.SetBasicAuth(p.apiKey, p.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opnsense: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// statusError maps a non-200 response to an error, wrapping dns sentinels
// where the status code has a clear meaning.
func statusError(endpoint string, resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(respBody))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("opnsense: %s: %w: %s", endpoint, dns.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("opnsense: %s: %w: %s", endpoint, dns.ErrNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("opnsense: %s: %w: %s", endpoint, dns.ErrRateLimited, msg)
	}
	return fmt.Errorf("opnsense: %s returned status %d: %s", endpoint, resp.StatusCode, msg)
}

// reconfigure tells OPNsense to apply DNS changes.
func (p *Provider) reconfigure(ctx context.Context) error {
	resp, err := p.doRequest(ctx, http.MethodPost, "unbound/service/reconfigure", struct{}{})
	if err != nil {
		return fmt.Errorf("opnsense: reconfigure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("reconfigure", resp)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode reconfigure response: %w", err)
	}
	p.log.V(1).Info("reconfigure completed", "status", result.Status)
	return nil
}

// searchResponse is the shape returned by searchHostOverride.
type searchResponse struct {
	Rows []hostRow `json:"rows"`
}

// hostRow represents a single host override row from the search response.
type hostRow struct {
	UUID     string `json:"uuid"`
	Enabled  string `json:"enabled"`
	Hostname string `json:"hostname"`
	Domain   string `json:"domain"`
	RR       string `json:"rr"`
	Server   string `json:"server"`
}

func (p *Provider) listOverrides(ctx context.Context) ([]hostRow, error) {
	resp, err := p.doRequest(ctx, http.MethodGet, "unbound/settings/searchHostOverride", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("searchHostOverride", resp)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("opnsense: decode search response: %w", err)
	}
	return sr.Rows, nil
}

// findOverrides returns the address and alias overrides for host within
// domain. Other record types (MX, TXT) are left alone.
func (p *Provider) findOverrides(ctx context.Context, host, domain string) ([]hostRow, error) {
	rows, err := p.listOverrides(ctx)
	if err != nil {
		return nil, err
	}
	var matches []hostRow
	for _, row := range rows {
		if !strings.EqualFold(row.Hostname, host) || !strings.EqualFold(row.Domain, domain) {
			continue
		}
		switch strings.ToUpper(row.RR) {
		case "A", "AAAA", "CNAME":
			matches = append(matches, row)
		}
	}
	return matches, nil
}

func (p *Provider) delOverride(ctx context.Context, uuid string) error {
	resp, err := p.doRequest(ctx, http.MethodPost, fmt.Sprintf("unbound/settings/delHostOverride/%s", uuid), struct{}{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("delHostOverride", resp)
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode delHostOverride response: %w", err)
	}
	if result.Result != "deleted" {
		return fmt.Errorf("opnsense: delHostOverride unexpected result: %s", result.Result)
	}
	return nil
}

// buildHostBody creates the JSON body for add host override calls.
func buildHostBody(domain string, record dns.Record) map[string]interface{} {
	return map[string]interface{}{
		"host": map[string]string{
			"enabled":     "1",
			"hostname":    record.Name,
			"domain":      domain,
			"rr":          record.Type,
			"server":      record.Value,
			"description": "managed by yk-subdomain-keeper",
			"mxprio":      "",
			"mx":          "",
		},
	}
}

// ZoneExists reports whether domain is served by this Unbound instance.
// Lookups by name and by id are equivalent because the id is the name.
func (p *Provider) ZoneExists(ctx context.Context, domain string, by dns.SearchType) (bool, error) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	p.log.V(1).Info("checking if zone exists", "zone", domain, "by", by.String())
	if len(p.zones) > 0 {
		return p.zones[domain], nil
	}

	rows, err := p.listOverrides(ctx)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if strings.EqualFold(row.Domain, domain) {
			return true, nil
		}
	}
	return false, nil
}

// GetZone returns the zone for domain.
func (p *Provider) GetZone(ctx context.Context, domain string, by dns.SearchType) (dns.Zone, error) {
	exists, err := p.ZoneExists(ctx, domain, by)
	if err != nil {
		return dns.Zone{}, err
	}
	if !exists {
		return dns.Zone{}, fmt.Errorf("opnsense: zone %q: %w", domain, dns.ErrNotFound)
	}
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	return dns.Zone{ID: domain, Name: domain}, nil
}

// CreateRecord adds a new DNS host override in the given zone.
func (p *Provider) CreateRecord(ctx context.Context, zoneID string, record dns.Record) error {
	p.log.Info("creating record", "zone", zoneID, "name", record.Name, "type", record.Type, "value", record.Value)

	body := buildHostBody(zoneID, record)
	resp, err := p.doRequest(ctx, http.MethodPost, "unbound/settings/addHostOverride", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("addHostOverride", resp)
	}

	var result struct {
		Result string `json:"result"`
		UUID   string `json:"uuid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode addHostOverride response: %w", err)
	}
	if result.Result != "saved" {
		return fmt.Errorf("opnsense: addHostOverride unexpected result: %s", result.Result)
	}

	p.log.Info("record created", "uuid", result.UUID)
	return p.reconfigure(ctx)
}

// DeleteRecord removes every A, AAAA and CNAME host override behind a
// subdomain binding.
func (p *Provider) DeleteRecord(ctx context.Context, binding dns.Binding) error {
	p.log.Info("deleting record", "subdomain", binding.FullSubdomain, "zone", binding.ZoneID)

	full := strings.ToLower(strings.TrimSuffix(binding.FullSubdomain, "."))
	zone := strings.ToLower(binding.ZoneID)
	host := strings.TrimSuffix(full, "."+zone)
	if zone == "" || host == full {
		name, err := dns.ParseName(full)
		if err != nil {
			return fmt.Errorf("opnsense: %w", err)
		}
		host, zone = name.SubDomain, name.RegistrableDomain
	}

	rows, err := p.findOverrides(ctx, host, zone)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("opnsense: no host override for %s: %w", full, dns.ErrNotFound)
	}

	for _, row := range rows {
		if err := p.delOverride(ctx, row.UUID); err != nil {
			return err
		}
		p.log.Info("record deleted", "uuid", row.UUID, "type", row.RR)
	}
	return p.reconfigure(ctx)
}
