package permission

import (
	"testing"

	"github.com/goodtune/ghbroker/internal/capability"
)

func httpCap(path string, methods ...string) capability.Capability {
	return capability.Capability{
		Kind: capability.KindHTTP, Host: "httpbin.org", PathPattern: path,
		Methods: methods, Description: "test",
	}
}

func TestGrantThenCheck(t *testing.T) {
	s := New()
	s.Grant(httpCap("*", "GET"))

	required := httpCap("/get", "GET")
	if !s.Check(required) {
		t.Error("expected check to succeed after grant")
	}
}

func TestRevokeRestoresPriorState(t *testing.T) {
	s := New()
	before := s.List()

	c := httpCap("*", "GET")
	s.Grant(c)
	s.Revoke(c)

	after := s.List()
	if len(before) != len(after) {
		t.Errorf("expected list to return to prior length %d, got %d", len(before), len(after))
	}
}

func TestRevokeSoleMatchDisablesCheck(t *testing.T) {
	s := New()
	c := httpCap("*", "GET")
	s.Grant(c)

	if removed := s.Revoke(c); !removed {
		t.Fatal("expected revoke to report removal")
	}
	if s.Check(httpCap("/get", "GET")) {
		t.Error("expected check to fail after revoking sole match")
	}
}

func TestRevokeRemovesAllDuplicates(t *testing.T) {
	s := New()
	c := httpCap("*", "GET")
	s.Grant(c)
	s.Grant(c)

	if !s.Revoke(c) {
		t.Fatal("expected revoke to report removal")
	}
	if len(s.List()) != 0 {
		t.Error("expected revoke to remove all structural duplicates")
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Grant(httpCap("*", "GET"))
	s.Clear()
	if len(s.List()) != 0 {
		t.Error("expected clear to empty the store")
	}
}
