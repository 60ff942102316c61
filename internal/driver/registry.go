// Package driver ships the built-in provider adapters and their registry.
//
// Drivers are request-scoped: the registry constructs every registered
// driver around the inbound request and picks the first one that claims
// it. Long-lived socket drivers (discord, websocket, cli) keep a
// persistent connection and synthesize a tagged request per received
// event instead.
package driver

import (
	"fmt"
	"log/slog"

	"botkit/internal/domain"
)

// requestDriverHeader tags requests synthesized by long-lived drivers so
// the registry routes them back to the originating instance.
const requestDriverHeader = "X-Botkit-Driver"

// Factory builds a driver around one inbound request.
type Factory func(req *domain.Request) domain.Driver

// Registry is an explicit, constructed driver registry handed to the
// dispatcher; there is no process-wide driver state.
type Registry struct {
	order     []string
	factories map[string]Factory
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// Register adds a driver factory under its name. Registration order
// decides precedence in Matching.
func (r *Registry) Register(name string, f Factory) {
	if _, dup := r.factories[name]; !dup {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Names returns the registered driver names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Matching returns the first registered driver that claims the request,
// or a NullDriver when none does.
func (r *Registry) Matching(req *domain.Request) domain.Driver {
	if req == nil {
		req = domain.NewRequest(nil)
	}
	for _, name := range r.order {
		d := r.factories[name](req)
		if d.MatchesRequest() {
			return d
		}
	}
	r.logger.Debug("no driver matched request, using null driver")
	return NewNullDriver()
}

// ForName constructs the named driver around an empty request, for
// outbound-only use (Say to another provider).
func (r *Registry) ForName(name string) (domain.Driver, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("driver %q is not registered", name)
	}
	return f(domain.NewRequest(nil)), nil
}

// ServiceStatus is one entry of a VerifyServices report.
type ServiceStatus struct {
	Name       string
	Configured bool
}

// VerifyServices reports which registered drivers hold the credentials
// they need. Used by the doctor command before going live.
func (r *Registry) VerifyServices() []ServiceStatus {
	statuses := make([]ServiceStatus, 0, len(r.order))
	for _, name := range r.order {
		d := r.factories[name](domain.NewRequest(nil))
		statuses = append(statuses, ServiceStatus{Name: name, Configured: d.IsConfigured()})
	}
	return statuses
}
