package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logrtesting "github.com/go-logr/logr/testing"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns"
)

// fakeCloudflare serves the subset of the v4 API the provider uses.
type fakeCloudflare struct {
	mu      sync.Mutex
	zones   map[string]zone   // by id
	records map[string]record // by id
	zoneOf  map[string]string // record id -> zone id
	created []createRecordBody
	nextID  int
}

func newFakeCloudflare() *fakeCloudflare {
	return &fakeCloudflare{
		zones:   map[string]zone{},
		records: map[string]record{},
		zoneOf:  map[string]string{},
	}
}

func (f *fakeCloudflare) addZone(id, name string) {
	f.zones[id] = zone{ID: id, Name: name, Status: "active"}
}

func (f *fakeCloudflare) addRecord(zoneID, name, typ, content string) {
	f.nextID++
	id := fmt.Sprintf("rec-%d", f.nextID)
	f.records[id] = record{ID: id, Name: name, Type: typ, Content: content}
	f.zoneOf[id] = zoneID
}

func reply(w http.ResponseWriter, status int, result any, errs ...apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if errs == nil {
		errs = []apiError{}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"success": status < 300,
		"errors":  errs,
		"result":  result,
	})
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer test-token" {
		reply(w, http.StatusForbidden, nil, apiError{Code: 9109, Message: "Invalid access token"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "zones":
		out := []zone{}
		for _, z := range f.zones {
			if z.Name == r.URL.Query().Get("name") {
				out = append(out, z)
			}
		}
		reply(w, http.StatusOK, out)
	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "zones":
		z, ok := f.zones[parts[1]]
		if !ok {
			reply(w, http.StatusNotFound, nil, apiError{Code: 7003, Message: "Could not route"})
			return
		}
		reply(w, http.StatusOK, z)
	case r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "dns_records":
		out := []record{}
		for id, rec := range f.records {
			if f.zoneOf[id] == parts[1] && rec.Name == r.URL.Query().Get("name") {
				out = append(out, rec)
			}
		}
		reply(w, http.StatusOK, out)
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "dns_records":
		var body createRecordBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			reply(w, http.StatusBadRequest, nil, apiError{Code: 1000, Message: err.Error()})
			return
		}
		f.created = append(f.created, body)
		f.addRecord(parts[1], body.Name, body.Type, body.Content)
		reply(w, http.StatusOK, record{ID: fmt.Sprintf("rec-%d", f.nextID), Name: body.Name, Type: body.Type})
	case r.Method == http.MethodDelete && len(parts) == 4:
		if _, ok := f.records[parts[3]]; !ok {
			reply(w, http.StatusNotFound, nil, apiError{Code: 81044, Message: "Record does not exist."})
			return
		}
		delete(f.records, parts[3])
		delete(f.zoneOf, parts[3])
		reply(w, http.StatusOK, map[string]string{"id": parts[3]})
	default:
		http.NotFound(w, r)
	}
}

func newTestProvider(t *testing.T, srv *httptest.Server, token string) *Provider {
	t.Helper()
	p, err := New(logrtesting.NewTestLogger(t), map[string]string{
		"api_token": token,
		"base_url":  srv.URL + "/",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	if _, err := New(logrtesting.NewTestLogger(t), map[string]string{}); err == nil {
		t.Fatal("expected error for missing api_token")
	}
	if _, err := New(logrtesting.NewTestLogger(t), map[string]string{"api_token": "x", "ttl": "abc"}); err == nil {
		t.Fatal("expected error for invalid ttl")
	}
	if _, err := New(logrtesting.NewTestLogger(t), map[string]string{"api_token": "x", "proxied": "maybe"}); err == nil {
		t.Fatal("expected error for invalid proxied")
	}

	p, err := New(logrtesting.NewTestLogger(t), map[string]string{"api_token": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.baseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %q", p.baseURL)
	}
	if p.ttl != 1 {
		t.Errorf("expected automatic ttl 1, got %d", p.ttl)
	}
}

func TestZoneLookup(t *testing.T) {
	fake := newFakeCloudflare()
	fake.addZone("Z1", "example.com")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv, "test-token")
	ctx := context.Background()

	tests := []struct {
		domain string
		by     dns.SearchType
		want   bool
	}{
		{"example.com", dns.SearchByName, true},
		{"example.com.", dns.SearchByName, true},
		{"other.org", dns.SearchByName, false},
		{"Z1", dns.SearchByID, true},
		{"Z404", dns.SearchByID, false},
	}
	for _, tt := range tests {
		t.Run(tt.domain+"/"+tt.by.String(), func(t *testing.T) {
			got, err := p.ZoneExists(ctx, tt.domain, tt.by)
			if err != nil {
				t.Fatalf("ZoneExists: %v", err)
			}
			if got != tt.want {
				t.Errorf("ZoneExists(%q, %s) = %v, want %v", tt.domain, tt.by, got, tt.want)
			}
		})
	}

	z, err := p.GetZone(ctx, "example.com", dns.SearchByName)
	if err != nil {
		t.Fatalf("GetZone: %v", err)
	}
	if z.ID != "Z1" || z.Name != "example.com" {
		t.Errorf("unexpected zone %+v", z)
	}

	if _, err := p.GetZone(ctx, "other.org", dns.SearchByName); !errors.Is(err, dns.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRecord(t *testing.T) {
	fake := newFakeCloudflare()
	fake.addZone("Z2", "example.com")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv, "test-token")
	err := p.CreateRecord(context.Background(), "Z2", dns.Record{Name: "mc", Type: "A", Value: "203.0.113.7"})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	if len(fake.created) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(fake.created))
	}
	got := fake.created[0]
	if got.Name != "mc.example.com" || got.Type != "A" || got.Content != "203.0.113.7" || got.TTL != 1 {
		t.Errorf("unexpected create body %+v", got)
	}
}

func TestCreateRecord_UnknownZone(t *testing.T) {
	fake := newFakeCloudflare()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv, "test-token")
	err := p.CreateRecord(context.Background(), "missing", dns.Record{Name: "mc", Type: "A", Value: "203.0.113.7"})
	if !errors.Is(err, dns.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRecord(t *testing.T) {
	fake := newFakeCloudflare()
	fake.addZone("Z1", "example.com")
	fake.addRecord("Z1", "mc.example.com", "A", "10.0.0.1")
	fake.addRecord("Z1", "mc.example.com", "TXT", "keep me")
	fake.addRecord("Z1", "web.example.com", "A", "10.0.0.2")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv, "test-token")
	err := p.DeleteRecord(context.Background(), dns.Binding{FullSubdomain: "mc.example.com", ZoneID: "Z1", ProviderID: 1})
	if err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}

	if len(fake.records) != 2 {
		t.Fatalf("expected 2 records left, got %d", len(fake.records))
	}
	for _, rec := range fake.records {
		if rec.Name == "mc.example.com" && rec.Type == "A" {
			t.Error("A record for mc.example.com should be gone")
		}
	}

	err = p.DeleteRecord(context.Background(), dns.Binding{FullSubdomain: "mc.example.com", ZoneID: "Z1", ProviderID: 1})
	if !errors.Is(err, dns.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteRecord_StaleZone(t *testing.T) {
	fake := newFakeCloudflare()
	fake.addZone("Z9", "example.com")
	fake.addRecord("Z9", "mc.example.com", "A", "10.0.0.1")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv, "test-token")
	err := p.DeleteRecord(context.Background(), dns.Binding{FullSubdomain: "mc.example.com", ZoneID: "Z1", ProviderID: 1})
	if !errors.Is(err, dns.ErrStaleZone) {
		t.Fatalf("expected ErrStaleZone, got %v", err)
	}
	if errors.Is(err, dns.ErrNotFound) {
		t.Fatalf("a stale zone must not read as a missing record: %v", err)
	}
	if len(fake.records) != 1 {
		t.Fatalf("expected the live record to be kept, got %d records", len(fake.records))
	}

	err = p.DeleteRecord(context.Background(), dns.Binding{FullSubdomain: "mc.example.com", ZoneID: "Z9", ProviderID: 1})
	if err != nil {
		t.Fatalf("DeleteRecord in current zone: %v", err)
	}
	if len(fake.records) != 0 {
		t.Errorf("expected record to be deleted, got %d left", len(fake.records))
	}
}

func TestUnauthorized(t *testing.T) {
	fake := newFakeCloudflare()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv, "bad-token")
	_, err := p.ZoneExists(context.Background(), "example.com", dns.SearchByName)
	if !errors.Is(err, dns.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestEnvelopeError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		errs   []apiError
		want   error
	}{
		{"status 401", http.StatusUnauthorized, nil, dns.ErrUnauthorized},
		{"status 404", http.StatusNotFound, nil, dns.ErrNotFound},
		{"status 429", http.StatusTooManyRequests, nil, dns.ErrRateLimited},
		{"status 409", http.StatusConflict, nil, dns.ErrConflict},
		{"code 81057", http.StatusBadRequest, []apiError{{Code: 81057, Message: "exists"}}, dns.ErrConflict},
		{"code 10000", http.StatusBadRequest, []apiError{{Code: 10000, Message: "auth"}}, dns.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := envelopeError(tt.status, tt.errs); !errors.Is(err, tt.want) {
				t.Errorf("envelopeError(%d, %v) = %v, want %v", tt.status, tt.errs, err, tt.want)
			}
		})
	}
}
