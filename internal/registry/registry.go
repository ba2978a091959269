// Package registry provides clients for the device registry and
// authorization collaborator services. Both are consulted on the hot path,
// so responses are cached in-process with a short TTL.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DeviceTypeSchema describes the expected payload shape for a device type.
// Field types are "number", "string" or "boolean".
type DeviceTypeSchema struct {
	TypeID         string            `json:"type_id"`
	RequiredFields map[string]string `json:"required_fields"`
	OptionalFields map[string]string `json:"optional_fields,omitempty"`
}

// DeviceRegistry resolves a device to its type schema.
type DeviceRegistry interface {
	GetDeviceSchema(ctx context.Context, deviceID string) (*DeviceTypeSchema, error)
}

// Authorization resolves which users are allowed to see a device's alerts.
type Authorization interface {
	GetAuthorizedUsers(ctx context.Context, deviceID string) ([]string, error)
}

// DefaultCacheTTL bounds how stale a cached registry answer may be.
const DefaultCacheTTL = 1 * time.Minute

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

type ttlCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[T]
	ttl     time.Duration
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{entries: make(map[string]cacheEntry[T]), ttl: ttl}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[T]) put(key string, value T) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// HTTPRegistry is a DeviceRegistry backed by the registry service's HTTP API.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
	cache   *ttlCache[*DeviceTypeSchema]
}

// NewHTTPRegistry creates a registry client for the given base URL.
func NewHTTPRegistry(baseURL string) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   newTTLCache[*DeviceTypeSchema](DefaultCacheTTL),
	}
}

// GetDeviceSchema returns the payload schema for the device's type.
func (r *HTTPRegistry) GetDeviceSchema(ctx context.Context, deviceID string) (*DeviceTypeSchema, error) {
	if schema, ok := r.cache.get(deviceID); ok {
		return schema, nil
	}

	var schema DeviceTypeSchema
	url := fmt.Sprintf("%s/api/v1/devices/%s/schema", r.baseURL, deviceID)
	if err := getJSON(ctx, r.client, url, &schema); err != nil {
		return nil, fmt.Errorf("failed to fetch schema for device %s: %w", deviceID, err)
	}

	r.cache.put(deviceID, &schema)
	return &schema, nil
}

// HTTPAuthorization is an Authorization backed by the auth service's HTTP API.
type HTTPAuthorization struct {
	baseURL string
	client  *http.Client
	cache   *ttlCache[[]string]
}

// NewHTTPAuthorization creates an authorization client for the given base URL.
func NewHTTPAuthorization(baseURL string) *HTTPAuthorization {
	return &HTTPAuthorization{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   newTTLCache[[]string](DefaultCacheTTL),
	}
}

// GetAuthorizedUsers returns the user IDs authorized for the device.
func (a *HTTPAuthorization) GetAuthorizedUsers(ctx context.Context, deviceID string) ([]string, error) {
	if users, ok := a.cache.get(deviceID); ok {
		return users, nil
	}

	var body struct {
		UserIDs []string `json:"user_ids"`
	}
	url := fmt.Sprintf("%s/api/v1/devices/%s/users", a.baseURL, deviceID)
	if err := getJSON(ctx, a.client, url, &body); err != nil {
		return nil, fmt.Errorf("failed to fetch authorized users for device %s: %w", deviceID, err)
	}

	a.cache.put(deviceID, body.UserIDs)
	return body.UserIDs, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
