// Package version carries the build identity reported by the startup log
// and the /health endpoint. Both values are stamped at build time with
// -ldflags "-X"; a plain `go build` leaves the dev defaults.
package version

var (
	Version = "dev"
	Commit  = "none"
)
