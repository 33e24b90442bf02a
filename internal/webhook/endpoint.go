package webhook

import "context"

// Endpoint is a tenant-configured receiver. The engine only reads endpoints;
// create/update/delete and secret rotation live in the management API.
type Endpoint struct {
	ID             string
	OrganizationID string
	URL            string
	Secret         string
	Enabled        bool
	Events         []EventType
}

// SubscribedTo reports whether the endpoint's subscription set contains
// eventType or the wildcard.
func (e Endpoint) SubscribedTo(eventType EventType) bool {
	for _, t := range e.Events {
		if t == Wildcard || t == eventType {
			return true
		}
	}
	return false
}

// Registry is the read-only view of endpoint records the engine consumes.
type Registry interface {
	// FindEnabledEndpoints returns every enabled endpoint owned by the
	// organization, regardless of subscription set.
	FindEnabledEndpoints(ctx context.Context, organizationID string) ([]Endpoint, error)

	// FindEndpoint returns one endpoint by id so a retry attempt can read
	// the current URL and secret.
	FindEndpoint(ctx context.Context, id string) (Endpoint, error)
}
