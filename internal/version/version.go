// ABOUTME: Version information for voicecoach
// ABOUTME: Reported to the relay when the client connects
package version

// Version is overridden at build time with -ldflags "-X .../version.Version=..."
var Version = "0.3.0"

const (
	// Product is the client name sent to the relay
	Product = "voicecoach"

	// Manufacturer identifies the client vendor
	Manufacturer = "harperreed"
)

// String returns "product/version"
func String() string {
	return Product + "/" + Version
}
