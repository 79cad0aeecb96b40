package broadcast

import "testing"

func TestLocalOutboundIPReturnsParsableAddress(t *testing.T) {
	ip, err := LocalOutboundIP()
	if err != nil {
		t.Skipf("no network route available in this environment: %v", err)
	}
	if ip == "" {
		t.Fatal("expected a non-empty IP string")
	}
}
