package registry

import "github.com/tailored-agentic-units/specialists/observability"

// Registry event types.
const (
	EventRegistered  observability.EventType = "registry.registered"
	EventDeactivated observability.EventType = "registry.deactivated"
	EventLoaded      observability.EventType = "registry.loaded"
	EventRebuilt     observability.EventType = "registry.rebuilt"
	EventQuarantined observability.EventType = "registry.quarantined"
	EventSaved       observability.EventType = "registry.saved"
	EventSaveFailed  observability.EventType = "registry.save_failed"
)
