// Package web carries the static pages served by poolhttpd.
package web

import (
	_ "embed"
)

// Form is the pool control form returned for every GET request. It is
// served verbatim; nothing in it depends on the request.
//
//go:embed form.html
var Form string
