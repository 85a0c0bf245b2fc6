package gateway

import (
	"net/http"
)

// HTTPHandler is implemented by anything that mounts routes on a shared
// mux under a path prefix.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}
