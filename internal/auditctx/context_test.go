package auditctx

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"crmaudit/internal/models"
)

type staticSessions struct {
	actor Actor
	ok    bool
}

func (s staticSessions) CurrentActor(context.Context) (Actor, bool) { return s.actor, s.ok }

func TestResolver_Capture(t *testing.T) {
	t.Run("no_request_context", func(t *testing.T) {
		md := NewResolver(nil).Capture(context.Background())
		if md.Actor != SystemActor {
			t.Errorf("Actor = %+v, want system actor", md.Actor)
		}
		if md.ClientAddress != SystemSentinel || md.UserAgent != SystemSentinel {
			t.Errorf("expected sentinel address and user agent, got %q / %q", md.ClientAddress, md.UserAgent)
		}
		if md.Source != models.SourceSystem {
			t.Errorf("Source = %s, want SYSTEM", md.Source)
		}
		if md.Endpoint != "" {
			t.Errorf("Endpoint = %q, want empty", md.Endpoint)
		}
	})

	t.Run("nil_context", func(t *testing.T) {
		md := NewResolver(nil).Capture(nil)
		if md.Actor != SystemActor {
			t.Errorf("Actor = %+v, want system actor", md.Actor)
		}
	})

	t.Run("full_request", func(t *testing.T) {
		ctx := WithRequest(context.Background(), RequestInfo{
			Method:       "PUT",
			Path:         "/api/v1/customers/42",
			ForwardedFor: "203.0.113.7, 10.0.0.1",
			RemoteAddr:   "10.0.0.1:5555",
			UserAgent:    "Mozilla/5.0",
			RequestID:    "req-1",
			SessionID:    "sess-1",
		})
		ctx = WithActor(ctx, Actor{ID: "u-1", Name: "Alice", Role: "admin"})

		md := NewResolver(nil).Capture(ctx)
		if md.Actor.ID != "u-1" || md.Actor.Role != "admin" {
			t.Errorf("Actor = %+v", md.Actor)
		}
		if md.ClientAddress != "203.0.113.7" {
			t.Errorf("ClientAddress = %q, want 203.0.113.7", md.ClientAddress)
		}
		if md.Endpoint != "PUT /api/v1/customers/42" {
			t.Errorf("Endpoint = %q", md.Endpoint)
		}
		if md.Source != models.SourceAPI {
			t.Errorf("Source = %s, want API", md.Source)
		}
		if md.UserAgent != "Mozilla/5.0" || md.RequestID != "req-1" || md.SessionID != "sess-1" {
			t.Errorf("unexpected request fields: %+v", md)
		}
	})

	t.Run("session_fallback", func(t *testing.T) {
		sessions := staticSessions{actor: Actor{ID: "u-9", Name: "Bob", Role: "manager"}, ok: true}
		md := NewResolver(sessions).Capture(context.Background())
		if md.Actor.ID != "u-9" {
			t.Errorf("Actor.ID = %q, want u-9", md.Actor.ID)
		}
	})

	t.Run("claims_win_over_session", func(t *testing.T) {
		sessions := staticSessions{actor: Actor{ID: "u-9"}, ok: true}
		ctx := WithActor(context.Background(), Actor{ID: "u-1"})
		if got := NewResolver(sessions).Capture(ctx).Actor.ID; got != "u-1" {
			t.Errorf("Actor.ID = %q, want u-1", got)
		}
	})

	t.Run("empty_session_actor_falls_back", func(t *testing.T) {
		sessions := staticSessions{actor: Actor{}, ok: true}
		if got := NewResolver(sessions).Capture(context.Background()).Actor; got != SystemActor {
			t.Errorf("Actor = %+v, want system actor", got)
		}
	})

	t.Run("missing_user_agent", func(t *testing.T) {
		ctx := WithRequest(context.Background(), RequestInfo{Method: "GET", Path: "/dashboard", RemoteAddr: "192.0.2.1:80"})
		md := NewResolver(nil).Capture(ctx)
		if md.UserAgent != SystemSentinel {
			t.Errorf("UserAgent = %q, want SYSTEM", md.UserAgent)
		}
		if md.Source != models.SourceUI {
			t.Errorf("Source = %s, want UI", md.Source)
		}
	})
}

func TestResolver_CaptureClampsToColumnWidths(t *testing.T) {
	long := func(n int) string { return strings.Repeat("ü", n) }
	ctx := WithRequest(context.Background(), RequestInfo{
		Method:       "GET",
		Path:         "/api/v1/" + long(600),
		ForwardedFor: long(150) + ", 10.0.0.1",
		UserAgent:    long(600),
		RequestID:    long(150),
		SessionID:    long(150),
	})
	ctx = WithActor(ctx, Actor{ID: long(150), Name: long(300), Role: long(80)})

	md := NewResolver(nil).Capture(ctx)

	fields := []struct {
		name  string
		value string
		width int
	}{
		{"user_agent", md.UserAgent, models.UserAgentWidth},
		{"endpoint", md.Endpoint, models.EndpointWidth},
		{"client_address", md.ClientAddress, models.IdentifierWidth},
		{"request_id", md.RequestID, models.IdentifierWidth},
		{"session_id", md.SessionID, models.IdentifierWidth},
		{"actor_id", md.Actor.ID, models.IdentifierWidth},
		{"actor_name", md.Actor.Name, models.ActorNameWidth},
		{"actor_role", md.Actor.Role, models.ActorRoleWidth},
	}
	for _, f := range fields {
		t.Run(f.name, func(t *testing.T) {
			if n := utf8.RuneCountInString(f.value); n != f.width {
				t.Errorf("%s has %d characters, want it clamped to %d", f.name, n, f.width)
			}
			if !utf8.ValidString(f.value) {
				t.Errorf("%s is not valid UTF-8 after clamping", f.name)
			}
		})
	}
}

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name string
		req  RequestInfo
		want string
	}{
		{"forwarded_first_entry", RequestInfo{ForwardedFor: " 198.51.100.1 , 10.0.0.2", RealIP: "10.0.0.3"}, "198.51.100.1"},
		{"real_ip", RequestInfo{RealIP: "198.51.100.2", RemoteAddr: "10.0.0.1:1234"}, "198.51.100.2"},
		{"peer_with_port", RequestInfo{RemoteAddr: "192.0.2.10:4321"}, "192.0.2.10"},
		{"peer_ipv6", RequestInfo{RemoteAddr: "[2001:db8::1]:443"}, "2001:db8::1"},
		{"peer_without_port", RequestInfo{RemoteAddr: "192.0.2.11"}, "192.0.2.11"},
		{"blank_forwarded", RequestInfo{ForwardedFor: " , ", RemoteAddr: "192.0.2.12:1"}, "192.0.2.12"},
		{"nothing", RequestInfo{}, SystemSentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientAddress(tt.req); got != tt.want {
				t.Errorf("ClientAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceFromPath(t *testing.T) {
	tests := []struct {
		path string
		want models.AuditSource
	}{
		{"", models.SourceSystem},
		{"/api/v1/customers", models.SourceAPI},
		{"/webhook/erp/orders", models.SourceWebhook},
		{"/customers/42", models.SourceUI},
		{"/customers/api/export", models.SourceUI},
		{"/reports/webhook/", models.SourceUI},
		{"/apix/v1", models.SourceUI},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := SourceFromPath(tt.path); got != tt.want {
				t.Errorf("SourceFromPath(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}
