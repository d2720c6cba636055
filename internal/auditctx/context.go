// Package auditctx carries request metadata on a context.Context and resolves
// it into the context fields of an audit record. Every lookup degrades to the
// system sentinel when no request is in flight.
package auditctx

import (
	"context"
	"net"
	"strings"

	"crmaudit/internal/models"
)

// SystemSentinel marks fields that could not be resolved from a request.
const SystemSentinel = "SYSTEM"

// Actor identifies who caused an event.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// SystemActor is used when no human actor can be resolved.
var SystemActor = Actor{ID: SystemSentinel, Name: "System", Role: SystemSentinel}

// IsSystem reports whether a is the system actor.
func (a Actor) IsSystem() bool { return a.ID == SystemSentinel }

// RequestInfo is the inbound HTTP request snapshot installed by middleware.
type RequestInfo struct {
	Method       string
	Path         string
	ForwardedFor string
	RealIP       string
	RemoteAddr   string
	UserAgent    string
	RequestID    string
	SessionID    string
}

type ctxKey int

const (
	requestKey ctxKey = iota
	actorKey
)

// WithRequest returns a copy of ctx carrying req.
func WithRequest(ctx context.Context, req RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey, req)
}

// RequestFrom returns the request installed on ctx, if any.
func RequestFrom(ctx context.Context) (RequestInfo, bool) {
	if ctx == nil {
		return RequestInfo{}, false
	}
	req, ok := ctx.Value(requestKey).(RequestInfo)
	return req, ok
}

// WithActor returns a copy of ctx carrying the authenticated actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the authenticated actor on ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok && actor.ID != ""
}

// SessionResolver supplies the current actor when the request carries no
// authenticated claims, for example from a server-side session store.
type SessionResolver interface {
	CurrentActor(ctx context.Context) (Actor, bool)
}

// Metadata is the resolved audit context of one event.
type Metadata struct {
	Actor         Actor
	SessionID     string
	RequestID     string
	ClientAddress string
	UserAgent     string
	Endpoint      string
	Source        models.AuditSource
}

// Resolver resolves Metadata from a context. It holds no state beyond its
// optional session fallback and is safe for concurrent use.
type Resolver struct {
	Sessions SessionResolver
}

// NewResolver creates a Resolver. sessions may be nil.
func NewResolver(sessions SessionResolver) *Resolver {
	return &Resolver{Sessions: sessions}
}

// Capture resolves the metadata for an event raised under ctx.
// Values are clamped to their column widths.
func (r *Resolver) Capture(ctx context.Context) Metadata {
	actor := r.resolveActor(ctx)
	actor.ID = models.Clamp(actor.ID, models.IdentifierWidth)
	actor.Name = models.Clamp(actor.Name, models.ActorNameWidth)
	actor.Role = models.Clamp(actor.Role, models.ActorRoleWidth)

	md := Metadata{
		Actor:         actor,
		ClientAddress: SystemSentinel,
		UserAgent:     SystemSentinel,
		Source:        models.SourceSystem,
	}

	req, ok := RequestFrom(ctx)
	if !ok {
		return md
	}

	md.SessionID = models.Clamp(req.SessionID, models.IdentifierWidth)
	md.RequestID = models.Clamp(req.RequestID, models.IdentifierWidth)
	md.ClientAddress = models.Clamp(ClientAddress(req), models.IdentifierWidth)
	if ua := strings.TrimSpace(req.UserAgent); ua != "" {
		md.UserAgent = models.Clamp(ua, models.UserAgentWidth)
	}
	if req.Method != "" && req.Path != "" {
		md.Endpoint = models.Clamp(req.Method+" "+req.Path, models.EndpointWidth)
	}
	md.Source = SourceFromPath(req.Path)
	return md
}

func (r *Resolver) resolveActor(ctx context.Context) Actor {
	if actor, ok := ActorFrom(ctx); ok {
		return actor
	}
	if r != nil && r.Sessions != nil {
		if actor, ok := r.Sessions.CurrentActor(ctx); ok && actor.ID != "" {
			return actor
		}
	}
	return SystemActor
}

// ClientAddress resolves the originating address of req: the first
// X-Forwarded-For entry, then X-Real-IP, then the peer address without its
// port, else the system sentinel.
func ClientAddress(req RequestInfo) string {
	if fwd := strings.TrimSpace(req.ForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(req.RealIP); realIP != "" {
		return realIP
	}
	if remote := strings.TrimSpace(req.RemoteAddr); remote != "" {
		if host, _, err := net.SplitHostPort(remote); err == nil {
			return host
		}
		return remote
	}
	return SystemSentinel
}

// SourceFromPath derives the source channel from a request path. Paths under
// /api/ are API calls and paths under /webhook/ are integrations. Any other
// path is a page served to the browser UI.
func SourceFromPath(path string) models.AuditSource {
	switch {
	case path == "":
		return models.SourceSystem
	case strings.HasPrefix(path, "/api/"):
		return models.SourceAPI
	case strings.HasPrefix(path, "/webhook/"):
		return models.SourceWebhook
	default:
		return models.SourceUI
	}
}
