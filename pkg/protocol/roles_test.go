// ABOUTME: Tests for role token parsing and negotiation
// ABOUTME: Verifies family/version selection, dedup and idempotence
package protocol

import (
	"reflect"
	"testing"
)

var serverRoles = []string{"player@v1", "player@v2", "controller@v1", "metadata@v1", "artwork@v1", "visualizer@v1"}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("player@v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Family != "player" || r.Version != 2 {
		t.Errorf("got %+v", r)
	}
	if r.String() != "player@v2" {
		t.Errorf("round trip: got %s", r.String())
	}

	for _, bad := range []string{"player", "player@", "player@2", "player@v0", "player@v-1", "@v1", "player@vx"} {
		if _, err := ParseRole(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestSelectRolesHighestVersionPerFamily(t *testing.T) {
	active, err := SelectRoles([]string{"player@v1", "player@v2", "metadata@v1"}, serverRoles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"player@v2", "metadata@v1"}
	if !reflect.DeepEqual(active, want) {
		t.Errorf("got %v, want %v", active, want)
	}
}

func TestSelectRolesOmitsUnsupportedFamilies(t *testing.T) {
	active, err := SelectRoles([]string{"player@v1", "hologram@v1"}, []string{"player@v1"})
	if err == nil {
		want := []string{"player@v1"}
		if !reflect.DeepEqual(active, want) {
			t.Errorf("got %v, want %v", active, want)
		}
	} else {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSelectRolesSkipsUnsupportedVersions(t *testing.T) {
	// Server only supports v1; client also offers v3 which must not win.
	active, err := SelectRoles([]string{"player@v3", "player@v1"}, []string{"player@v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"player@v1"}
	if !reflect.DeepEqual(active, want) {
		t.Errorf("got %v, want %v", active, want)
	}
}

func TestSelectRolesDeduplicates(t *testing.T) {
	active, err := SelectRoles([]string{"player@v1", "player@v1", "player@v2"}, serverRoles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"player@v2"}
	if !reflect.DeepEqual(active, want) {
		t.Errorf("got %v, want %v", active, want)
	}
}

func TestSelectRolesIdempotent(t *testing.T) {
	hello := []string{"visualizer@v1", "player@v2", "player@v1", "controller@v1"}

	first, err := SelectRoles(hello, serverRoles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := SelectRoles(hello, serverRoles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("negotiation not idempotent: %v vs %v", first, second)
	}
}

func TestSelectRolesMalformedToken(t *testing.T) {
	if _, err := SelectRoles([]string{"player"}, serverRoles); err == nil {
		t.Error("expected error for bare role token")
	}
}

func TestHasFamily(t *testing.T) {
	tokens := []string{"player@v2", "metadata@v1"}
	if !HasFamily(tokens, "player") {
		t.Error("expected player family present")
	}
	if HasFamily(tokens, "artwork") {
		t.Error("did not expect artwork family")
	}
}
