package server

import "testing"

func TestRequireLocalAddressAcceptsLoopback(t *testing.T) {
	cases := []string{"127.0.0.1:4555", "localhost:4555", "[::1]:4555", "unix:///tmp/broker.sock"}
	for _, addr := range cases {
		if err := requireLocalAddress(addr); err != nil {
			t.Errorf("requireLocalAddress(%q) = %v, want nil", addr, err)
		}
	}
}

func TestRequireLocalAddressRejectsNonLocal(t *testing.T) {
	cases := []string{"0.0.0.0:4555", "192.168.1.5:4555", "example.com:4555"}
	for _, addr := range cases {
		if err := requireLocalAddress(addr); err == nil {
			t.Errorf("requireLocalAddress(%q) = nil, want an error", addr)
		}
	}
}
