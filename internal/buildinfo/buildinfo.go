// Package buildinfo contains build-time injected values.
//
// These values are set via -ldflags during the build process, e.g.:
//
//	go build -ldflags="-X github.com/safareli/http-proxy/internal/buildinfo.Version=1.2.3"
package buildinfo

// Version is the released version string. "dev" when built without ldflags.
var Version = "dev"

// Commit is the VCS commit hash the binary was built from.
var Commit = "unknown"

// Date is the build timestamp in RFC 3339.
var Date = "unknown"

// String renders the three values the way the CLI's --version flag reports them.
func String() string {
	return "Version: " + Version + "\nCommit: " + Commit + "\nBuild Date: " + Date
}
