// Package nmos builds the IS-04 resource representations (Node, Device,
// Receiver) the registration worker posts to a registry and the Node API
// serves to controllers.
package nmos

import (
	"fmt"
	"time"
)

// now is swappable in tests.
var now = time.Now

// Version returns an IS-04 version string ("seconds:nanoseconds"). The
// schema describes this as a TAI timestamp but only validates the
// ^[0-9]+:[0-9]+$ shape, so Unix time is sufficient for registries in the
// field.
func Version() string {
	ns := now().UnixNano()
	return fmt.Sprintf("%d:%d", ns/1e9, ns%1e9)
}
