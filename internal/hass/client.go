package hass

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

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when Home Assistant does not know the entity
var ErrNotFound = errors.New("hass: entity not found")

// Options parameterise the Home Assistant REST client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the Home Assistant REST API
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a REST client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://homeassistant.local:8123"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "hass_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// State is an entity state as returned by /api/states
type State struct {
	EntityID    string                     `json:"entity_id"`
	State       string                     `json:"state"`
	Attributes  map[string]json.RawMessage `json:"attributes"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// Attribute decodes the named attribute into out. It reports false when the
// attribute is missing or null.
func (s State) Attribute(name string, out any) (bool, error) {
	raw, ok := s.Attributes[name]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode attribute %s of %s: %w", name, s.EntityID, err)
	}
	return true, nil
}

// State fetches the current state of an entity
func (c *Client) State(ctx context.Context, entityID string) (State, error) {
	endpoint := c.baseURL + "/api/states/" + url.PathEscape(entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return State{}, fmt.Errorf("creating request: %w", err)
	}

	var state State
	if err := c.do(req, &state); err != nil {
		return State{}, fmt.Errorf("fetching state of %s: %w", entityID, err)
	}
	return state, nil
}

// Number reads the state of an entity as a number
func (c *Client) Number(ctx context.Context, entityID string) (float64, error) {
	state, err := c.State(ctx, entityID)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(state.State), 64)
	if err != nil {
		return 0, fmt.Errorf("state of %s is not numeric: %q", entityID, state.State)
	}
	return value, nil
}

type serviceResult struct {
	ServiceResponse json.RawMessage `json:"service_response"`
}

// CallService calls a service that returns a response and decodes the
// response into out
func (c *Client) CallService(ctx context.Context, domain, service string, data any, out any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/services/%s/%s?return_response", c.baseURL, url.PathEscape(domain), url.PathEscape(service))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res serviceResult
	if err := c.do(req, &res); err != nil {
		return fmt.Errorf("calling %s.%s: %w", domain, service, err)
	}
	if out == nil || len(res.ServiceResponse) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.ServiceResponse, out); err != nil {
		return fmt.Errorf("decoding %s.%s response: %w", domain, service, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	c.logger.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("home assistant request")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("home assistant returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
