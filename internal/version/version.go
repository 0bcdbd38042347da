// Package version carries the strings answered to version queries. Both are
// overridable at link time with -ldflags "-X".
package version

var (
	Service  = "2.0.0"
	Executor = "0.0.0-dev"
)

// ServiceVersion is the version of the control service.
func ServiceVersion() string {
	return Service
}

// ExecutorVersion is the version of the executor linked into the host.
func ExecutorVersion() string {
	return Executor
}
