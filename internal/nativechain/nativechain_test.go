package nativechain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klingon-exchange/ntvswap/internal/htlc"
)

func testServer(t *testing.T, handler func(method string, params []json.RawMessage) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]interface{}{"code": rpcErr.Code, "message": rpcErr.Message}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestCreateHTLCRoundTrip(t *testing.T) {
	srv := testServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if method != "htlc_create_kpiv" {
			t.Fatalf("unexpected method %s", method)
		}
		return map[string]interface{}{
			"txid":          "abc123",
			"outpoint":      "abc123:0",
			"expiry_height": 800120,
		}, nil
	})
	defer srv.Close()

	c, err := NewClient(srv.URL, "", "", "", 0, true)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	var hashlock [32]byte
	hashlock[0] = 0x01
	result, err := c.CreateHTLC(context.Background(), hashlock, 100, "taker-addr", 120, "hot-claim", "lp-cold", "hot-refund")
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}
	if result.TxID != "abc123" || result.Outpoint != "abc123:0" || result.ExpiryHeight != 800120 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetHTLCNotFoundReturnsNilNil(t *testing.T) {
	srv := testServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -1, Message: "not found"}
	})
	defer srv.Close()

	c, err := NewClient(srv.URL, "", "", "", 0, true)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	record, err := c.GetHTLC(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("expected no error for not-found, got %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
}

func TestCurrentHeight(t *testing.T) {
	srv := testServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if method != "getblockcount" {
			t.Fatalf("unexpected method %s", method)
		}
		return 800123, nil
	})
	defer srv.Close()

	c, err := NewClient(srv.URL, "", "", "", 0, true)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	height, err := c.CurrentHeight(context.Background())
	if err != nil {
		t.Fatalf("CurrentHeight: %v", err)
	}
	if height != 800123 {
		t.Fatalf("expected height 800123, got %d", height)
	}
}

func TestListHTLCsPassesStatusFilter(t *testing.T) {
	var gotStatus string
	srv := testServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if len(params) > 0 {
			_ = json.Unmarshal(params[0], &gotStatus)
		}
		return []map[string]interface{}{}, nil
	})
	defer srv.Close()

	c, err := NewClient(srv.URL, "", "", "", 0, true)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.ListHTLCs(context.Background(), HTLCFilter{Status: "locked"}); err != nil {
		t.Fatalf("ListHTLCs: %v", err)
	}
	if gotStatus != "locked" {
		t.Fatalf("expected status filter 'locked' to be forwarded, got %q", gotStatus)
	}
}

func TestOpenHashlocksTypeCompat(t *testing.T) {
	// Sanity check that nativechain and htlc agree on the OpenHashlocks shape.
	var open htlc.OpenHashlocks = map[[32]byte]bool{}
	if open == nil {
		t.Fatalf("unexpected nil map")
	}
}
