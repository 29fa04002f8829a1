package app

import "fmt"

// Build information populated via -ldflags at build time, e.g.
// -X github.com/hyperifyio/autodiscover/internal/app.BuildVersion=1.2.0.
var (
    BuildVersion = "0.0.0-dev"
    BuildCommit  = "unknown"
    BuildDate    = "unknown"
)

// Version renders the build information on one line.
func Version() string {
    return fmt.Sprintf("%s (commit %s, built %s)", BuildVersion, BuildCommit, BuildDate)
}
