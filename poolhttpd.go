// Package poolhttpd holds build-time information shared by the poolhttpd
// binary and its libraries.
package poolhttpd

// Version is the current version of poolhttpd.
//
// This variable is set at build time using the -X linker flag. If not set,
// it defaults to "devel".
var Version = "devel"

// DefaultPort is the TCP port the request logger listens on when no port
// argument is given.
const DefaultPort = 8080

// DefaultBind is the listen address derived from DefaultPort.
const DefaultBind = ":8080"
