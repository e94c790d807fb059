// Package version provides version information for the pricefeed application.
package version

// Version is the current version of the pricefeed application.
const Version = "0.3.0"

// AgentString returns the full agent string with versioning.
// Format: pricefeed-go/v{version}
func AgentString() string {
	return "pricefeed-go/v" + Version
}
