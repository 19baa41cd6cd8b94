package cache

import (
	"strconv"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "feed"

// Key identifies one cached upstream resource.
type Key struct {
	// Resource is the resource kind, e.g. "owner".
	Resource string

	// ID is the upstream identifier of the resource.
	ID int
}

// String generates a deterministic cache key string.
// Format: feed:<resource>:<id>
//
// Example:
//
//	feed:owner:10
func (k Key) String() string {
	parts := []string{KeyPrefix}

	resource := strings.Trim(strings.ToLower(k.Resource), ":")
	if resource != "" {
		parts = append(parts, resource)
	}

	parts = append(parts, strconv.Itoa(k.ID))
	return strings.Join(parts, ":")
}
