// Package cloudflare implements dns.Provider against the Cloudflare API v4.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns"
)

const (
	defaultBaseURL = "https://api.cloudflare.com/client/v4"
	requestTimeout = 30 * time.Second
)

func init() {
	dns.Register("cloudflare", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

var _ dns.Provider = (*Provider)(nil)

// Provider talks to Cloudflare with a scoped API token (Zone:Read, DNS:Edit).
type Provider struct {
	token   string
	baseURL string
	ttl     int
	proxied bool
	client  *http.Client
	log     logr.Logger
}

// New creates a Cloudflare DNS provider from the given settings map.
// Required settings: api_token.
// Optional settings: base_url, ttl (default 1 = automatic), proxied (default false).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	token := settings["api_token"]
	if token == "" {
		return nil, fmt.Errorf("cloudflare: missing required setting 'api_token'")
	}

	baseURL := settings["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	ttl := 1
	if v := settings["ttl"]; v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: invalid ttl %q: %w", v, err)
		}
		ttl = parsed
	}

	proxied := false
	if v := settings["proxied"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: invalid proxied %q: %w", v, err)
		}
		proxied = parsed
	}

	return &Provider{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		proxied: proxied,
		client:  &http.Client{Timeout: requestTimeout},
		log:     log,
	}, nil
}

// envelope is the standard Cloudflare API response wrapper.
type envelope[T any] struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
	Result  T          `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type record struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type createRecordBody struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
	Comment string `json:"comment,omitempty"`
}

// envelopeError maps a failed Cloudflare response to dns sentinels,
// first by HTTP status, then by API error code.
func envelopeError(status int, errs []apiError) error {
	msg := errorString(errs)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("cloudflare: %w: %s", dns.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("cloudflare: %w: %s", dns.ErrNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("cloudflare: %w: %s", dns.ErrRateLimited, msg)
	case http.StatusConflict:
		return fmt.Errorf("cloudflare: %w: %s", dns.ErrConflict, msg)
	}

	for _, e := range errs {
		switch e.Code {
		case 9109, 10000:
			return fmt.Errorf("cloudflare: %w: %s", dns.ErrUnauthorized, e.Message)
		case 7003, 81044:
			return fmt.Errorf("cloudflare: %w: %s", dns.ErrNotFound, e.Message)
		case 81053, 81057, 81058:
			return fmt.Errorf("cloudflare: %w: %s", dns.ErrConflict, e.Message)
		}
	}
	return fmt.Errorf("cloudflare: status %d: %s", status, msg)
}

func errorString(errs []apiError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("[%d] %s", e.Code, e.Message))
	}
	return strings.Join(msgs, "; ")
}

// do executes a request and decodes the envelope into out. A response with
// success=false is turned into an error.
func do[T any](ctx context.Context, p *Provider, method, path string, body any, out *envelope[T]) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cloudflare: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("cloudflare: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloudflare: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return envelopeError(resp.StatusCode, nil)
		}
		return fmt.Errorf("cloudflare: decode response: %w", err)
	}
	if !out.Success {
		return envelopeError(resp.StatusCode, out.Errors)
	}
	return nil
}

// findZone returns the zone for domain, or nil when Cloudflare has none.
func (p *Provider) findZone(ctx context.Context, domain string, by dns.SearchType) (*zone, error) {
	switch by {
	case dns.SearchByID:
		var out envelope[zone]
		err := do(ctx, p, http.MethodGet, "/zones/"+url.PathEscape(domain), nil, &out)
		if err != nil {
			if errors.Is(err, dns.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &out.Result, nil
	default:
		var out envelope[[]zone]
		path := "/zones?per_page=1&name=" + url.QueryEscape(strings.TrimSuffix(domain, "."))
		if err := do(ctx, p, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		if len(out.Result) == 0 {
			return nil, nil
		}
		return &out.Result[0], nil
	}
}

// ZoneExists reports whether the account has a zone matching domain.
func (p *Provider) ZoneExists(ctx context.Context, domain string, by dns.SearchType) (bool, error) {
	p.log.V(1).Info("checking if zone exists", "zone", domain, "by", by.String())
	z, err := p.findZone(ctx, domain, by)
	if err != nil {
		return false, err
	}
	return z != nil, nil
}

// GetZone returns the zone matching domain.
func (p *Provider) GetZone(ctx context.Context, domain string, by dns.SearchType) (dns.Zone, error) {
	z, err := p.findZone(ctx, domain, by)
	if err != nil {
		return dns.Zone{}, err
	}
	if z == nil {
		return dns.Zone{}, fmt.Errorf("cloudflare: zone %q: %w", domain, dns.ErrNotFound)
	}
	return dns.Zone{ID: z.ID, Name: z.Name}, nil
}

// CreateRecord creates record inside the zone with the given id. Cloudflare
// expects the record name fully qualified, so the zone name is looked up first.
func (p *Provider) CreateRecord(ctx context.Context, zoneID string, rec dns.Record) error {
	z, err := p.GetZone(ctx, zoneID, dns.SearchByID)
	if err != nil {
		return err
	}

	name := z.Name
	if rec.Name != "" {
		name = rec.Name + "." + z.Name
	}
	ttl := rec.TTL
	if ttl == 0 {
		ttl = p.ttl
	}

	p.log.Info("creating record", "zone", zoneID, "name", name, "type", rec.Type, "value", rec.Value)
	var out envelope[record]
	err = do(ctx, p, http.MethodPost, "/zones/"+url.PathEscape(zoneID)+"/dns_records", createRecordBody{
		Type:    rec.Type,
		Name:    name,
		Content: rec.Value,
		TTL:     ttl,
		Proxied: p.proxied,
		Comment: "managed by yk-subdomain-keeper",
	}, &out)
	if err != nil {
		return fmt.Errorf("cloudflare: create record %s: %w", name, err)
	}

	p.log.Info("record created", "id", out.Result.ID)
	return nil
}

// DeleteRecord deletes every address or alias record named after the
// binding's subdomain in the binding's zone. A zone id Cloudflare no longer
// knows yields dns.ErrStaleZone; dns.ErrNotFound means the zone exists but
// holds no such record.
func (p *Provider) DeleteRecord(ctx context.Context, binding dns.Binding) error {
	name := strings.ToLower(strings.TrimSuffix(binding.FullSubdomain, "."))
	p.log.Info("deleting record", "subdomain", name, "zone", binding.ZoneID)

	z, err := p.findZone(ctx, binding.ZoneID, dns.SearchByID)
	if err != nil {
		return fmt.Errorf("cloudflare: resolve zone %s: %w", binding.ZoneID, err)
	}
	if z == nil {
		return fmt.Errorf("cloudflare: zone id %s: %w", binding.ZoneID, dns.ErrStaleZone)
	}

	var list envelope[[]record]
	path := "/zones/" + url.PathEscape(binding.ZoneID) + "/dns_records?per_page=100&name=" + url.QueryEscape(name)
	if err := do(ctx, p, http.MethodGet, path, nil, &list); err != nil {
		return fmt.Errorf("cloudflare: list records for %s: %w", name, err)
	}

	deleted := 0
	for _, r := range list.Result {
		switch r.Type {
		case "A", "AAAA", "CNAME":
		default:
			continue
		}
		var out envelope[struct {
			ID string `json:"id"`
		}]
		recPath := "/zones/" + url.PathEscape(binding.ZoneID) + "/dns_records/" + url.PathEscape(r.ID)
		if err := do(ctx, p, http.MethodDelete, recPath, nil, &out); err != nil {
			return fmt.Errorf("cloudflare: delete record %s: %w", r.ID, err)
		}
		p.log.Info("record deleted", "id", r.ID, "type", r.Type)
		deleted++
	}

	if deleted == 0 {
		return fmt.Errorf("cloudflare: no record named %s: %w", name, dns.ErrNotFound)
	}
	return nil
}
