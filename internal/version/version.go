// ABOUTME: Version and product identification
// ABOUTME: Reported in client/hello device info and relay logs
package version

// Version is overridden at build time with -ldflags "-X .../version.Version=..."
var Version = "0.1.0"

const (
	Product      = "Sendspin Voice"
	Manufacturer = "Sendspin"
)
