package conn

import (
	"context"
	"net/netip"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	for _, c := range []struct {
		in       string
		isIP     bool
		port     uint16
		wantText string
	}{
		{"127.0.0.1:5000", true, 5000, "127.0.0.1:5000"},
		{"[2001:db8::1]:38412", true, 38412, "[2001:db8::1]:38412"},
		{"[::ffff:127.0.0.1]:9", true, 9, "[::ffff:127.0.0.1]:9"},
		{"localhost:2905", false, 2905, "localhost:2905"},
	} {
		t.Run(c.in, func(t *testing.T) {
			ep, err := ParseEndpoint(c.in)
			if err != nil {
				t.Fatalf("ParseEndpoint(%q) failed: %v", c.in, err)
			}
			if ep.IsIP() != c.isIP {
				t.Errorf("IsIP() = %t, want %t", ep.IsIP(), c.isIP)
			}
			if ep.Port() != c.port {
				t.Errorf("Port() = %d, want %d", ep.Port(), c.port)
			}
			if s := ep.String(); s != c.wantText {
				t.Errorf("String() = %q, want %q", s, c.wantText)
			}

			var decoded Endpoint
			text, _ := ep.MarshalText()
			if err := decoded.UnmarshalText(text); err != nil {
				t.Fatalf("UnmarshalText(%q) failed: %v", text, err)
			}
			if decoded != ep {
				t.Errorf("UnmarshalText(%q) = %v, want %v", text, decoded, ep)
			}
		})
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	for _, s := range []string{"", "127.0.0.1", "127.0.0.1:65536", "[::1]:port", ":80"} {
		if _, err := ParseEndpoint(s); err == nil {
			t.Errorf("ParseEndpoint(%q) succeeded, want error", s)
		}
	}
}

func TestEndpointResolveIPPort(t *testing.T) {
	want := netip.MustParseAddrPort("192.0.2.7:5000")
	got, err := EndpointFromAddrPort(want).ResolveIPPort(context.Background())
	if err != nil {
		t.Fatalf("ResolveIPPort() failed: %v", err)
	}
	if got != want {
		t.Errorf("ResolveIPPort() = %v, want %v", got, want)
	}

	if _, err = (Endpoint{}).ResolveIPPort(context.Background()); err == nil {
		t.Error("ResolveIPPort() on zero endpoint succeeded")
	}
	if (Endpoint{}).IsValid() {
		t.Error("zero endpoint is valid")
	}
}
