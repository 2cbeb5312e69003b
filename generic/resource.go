/*
resource.go - Resource type registration and lookup

PURPOSE:
  Domain packages register their resource types so stores can turn the
  string persisted in a transaction row back into the concrete type.

USAGE:
  // In leave/types.go
  func init() {
      generic.RegisterResource(Casual)
  }

  // In a store scan
  tx.ResourceType = generic.ResolveResource("casual") // leave.Casual
*/
package generic

import "sync"

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource adds a resource type to the global registry.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource finds a registered resource type by ID. Returns nil if not found.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// StringResource is the fallback for IDs with no registered type.
type StringResource struct {
	ID     string
	Domain string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }

// ResolveResource looks up a resource type, falling back to a StringResource.
func ResolveResource(id string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id, Domain: "unknown"}
}
