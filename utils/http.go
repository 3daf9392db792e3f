package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for best-effort side calls (settlement
// notifications). Settlement-critical clients carry their own timeouts.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
