package proxy

import "testing"

func TestClassify(t *testing.T) {
	cap, err := Classify("https://httpbin.org/get?x=1", "get")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if cap.Host != "httpbin.org" {
		t.Errorf("Host = %q, want httpbin.org", cap.Host)
	}
	if cap.PathPattern != "/get" {
		t.Errorf("PathPattern = %q, want /get", cap.PathPattern)
	}
	if len(cap.Methods) != 1 || cap.Methods[0] != "GET" {
		t.Errorf("Methods = %v, want [GET]", cap.Methods)
	}
}

func TestClassifyUnknownMethodDefaultsToGet(t *testing.T) {
	cap, err := Classify("https://example.com/", "TRACE")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if cap.Methods[0] != "GET" {
		t.Errorf("Methods = %v, want [GET]", cap.Methods)
	}
}
