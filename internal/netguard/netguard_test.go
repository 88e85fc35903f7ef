package netguard

import "testing"

func TestValidateEndpointRejectsLoopback(t *testing.T) {
	if err := ValidateEndpoint("http://127.0.0.1:8545", false); err == nil {
		t.Fatalf("expected loopback endpoint to be rejected")
	}
}

func TestValidateEndpointRejectsPrivateRange(t *testing.T) {
	if err := ValidateEndpoint("http://192.168.1.10:8545", false); err == nil {
		t.Fatalf("expected RFC1918 endpoint to be rejected")
	}
}

func TestValidateEndpointAllowsLoopbackWithDevFlag(t *testing.T) {
	if err := ValidateEndpoint("http://127.0.0.1:8545", true); err != nil {
		t.Fatalf("expected loopback endpoint to be allowed with dev flag: %v", err)
	}
}

func TestValidateEndpointAllowsPublicIP(t *testing.T) {
	// A literal public IP avoids a DNS round-trip in the test.
	if err := ValidateEndpoint("https://8.8.8.8", false); err != nil {
		t.Fatalf("expected public endpoint to pass: %v", err)
	}
}
