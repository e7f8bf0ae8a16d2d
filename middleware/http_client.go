package middleware

import (
	"net/http"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// GetCustomXRayHTTPClient returns a custom HTTP client instrumented with X-Ray
// Useful when you need to customize the client (e.g., timeouts, transport)
func GetCustomXRayHTTPClient(client *http.Client) *http.Client {
	return xray.Client(client)
}

// ChainRPCClient is the client guest transactions are sent with. When tracing
// is off it is a plain client with the same timeout.
func ChainRPCClient(timeout time.Duration, traced bool) *http.Client {
	client := &http.Client{Timeout: timeout}
	if traced {
		return GetCustomXRayHTTPClient(client)
	}
	return client
}
