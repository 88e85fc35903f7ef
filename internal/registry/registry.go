// Package registry implements the off-chain hashlock -> taker-address lookup
// client (spec §4.4). It is grounded in the original prototype's
// sdk/rpc_client.py RPCClient (JSON-over-HTTP with a minimal typed method set)
// and in spec §6's narrowed registry HTTP surface (POST /register, GET
// /lookup) — the broader FastAPI offer-book indexer described in
// pna-registry/registry_service.py is out of scope per spec §1.
//
// The registry is untrusted: spec §4.4 is explicit that lookups are hints,
// never authorization. The taker destination only takes effect once it is
// baked into the native-side HTLC's claim path at creation time.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klingon-exchange/ntvswap/internal/netguard"
)

// Client is the registry HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a registry client after validating baseURL against the
// SSRF-style endpoint rule (spec §4.1).
func NewClient(baseURL string, timeout time.Duration, allowLoopback bool) (*Client, error) {
	if err := netguard.ValidateEndpoint(baseURL, allowLoopback); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// RegisterTaker publishes (H, taker_native_addr) so an LP can later look up
// the taker's claim destination (spec §4.4 register_taker).
func (c *Client) RegisterTaker(ctx context.Context, hashlockHex, takerNativeAddr string) error {
	body, err := json.Marshal(map[string]string{
		"hashlock":    hashlockHex,
		"native_addr": takerNativeAddr,
	})
	if err != nil {
		return fmt.Errorf("registry: marshal register body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("registry: build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: register: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registry: register returned status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Lookup returns the taker's registered native destination for hashlockHex,
// or ok=false if no registration is known yet (spec §4.4 lookup).
func (c *Client) Lookup(ctx context.Context, hashlockHex string) (addr string, ok bool, err error) {
	u := c.baseURL + "/lookup?hashlock=" + url.QueryEscape(hashlockHex)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, fmt.Errorf("registry: build lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("registry: lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("registry: lookup returned status %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		NativeAddr string `json:"native_addr"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, fmt.Errorf("registry: decode lookup response: %w", err)
	}
	if result.NativeAddr == "" {
		return "", false, nil
	}
	return result.NativeAddr, true, nil
}

// Offer is the read-only subset of the off-chain offer-book LOT shape that the
// LP's response phase needs for validation (spec §4.6 step 2: "verify quote
// HTLC parameters match offer"). It is grounded in the original prototype's
// sdk/dex_types.py LOT dataclass, narrowed to the fields this core actually
// consumes; publication, signing, and matching of offers remain an external
// concern (spec §1, §9 open question).
type Offer struct {
	Hashlock          string `json:"hashlock"`
	PriceQuotePerUnit uint64 `json:"price_quote_per_unit"`
	MinQuoteAmount    uint64 `json:"min_quote_amount"`
	LPQuoteAddr       string `json:"lp_quote_addr"`
	TimelockSeconds   int64  `json:"timelock_seconds"`
}

// OfferLookup is implemented by whatever external offer-book component the
// deployment wires in (spec §9: "the HTLC state machine must remain
// independently testable" from the offer book). The LP orchestrator depends
// only on this interface, never on a concrete offer-book client.
type OfferLookup interface {
	OfferByHashlock(ctx context.Context, hashlockHex string) (*Offer, bool, error)
}

// OfferByHashlock looks up the published offer backing a hashlock, so the LP
// can translate the taker's locked quote amount into a native amount (spec
// §4.5 INVENTORY -> TAKEN: "amount >= offer x price"). Client satisfies
// OfferLookup, but callers that only need the narrower register/lookup
// surface should keep depending on that interface instead of *Client.
func (c *Client) OfferByHashlock(ctx context.Context, hashlockHex string) (*Offer, bool, error) {
	u := c.baseURL + "/offer?hashlock=" + url.QueryEscape(hashlockHex)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("registry: build offer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("registry: offer lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("registry: offer lookup returned status %d: %s", resp.StatusCode, string(b))
	}

	var offer Offer
	if err := json.NewDecoder(resp.Body).Decode(&offer); err != nil {
		return nil, false, fmt.Errorf("registry: decode offer response: %w", err)
	}
	return &offer, true, nil
}
