package tunnel

import "github.com/google/uuid"

// generateShareToken produces a fresh, locally-generated share token
//: opaque to the share service, just unique enough that two
// concurrent `share` invocations never collide.
func generateShareToken() string {
	return uuid.NewString()
}
