// ABOUTME: Version information for ringfeed binaries
// ABOUTME: Reported by --version and logged at startup
package version

import "fmt"

const (
	Version      = "0.1.0"
	Product      = "ringfeed"
	Manufacturer = "Resonate"
)

// String returns the one-line banner printed by --version
func String() string {
	return fmt.Sprintf("%s %s (%s)", Product, Version, Manufacturer)
}
