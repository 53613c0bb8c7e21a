// Package identity provides process-wide service identity. The instance id
// doubles as the default lease owner for cluster coordination.
package identity

import (
	"sync"

	"github.com/rs/xid"
)

var (
	serviceName        = "unknown"
	instanceID         = xid.New().String()
	setServiceNameOnce sync.Once
)

// WhoAmI returns the global identity.
// serviceName defaults to "unknown" until SetServiceName is called.
// instanceID uniquely identifies this execution of the process; it is fixed
// at initialization and cannot be altered.
func WhoAmI() (service, instance string) {
	return serviceName, instanceID
}

// SetServiceName sets the global service name. Protected by sync.Once so the
// name cannot change once set. Do not set the service name in tests.
func SetServiceName(name string) {
	setServiceNameOnce.Do(func() {
		serviceName = name
	})
}
