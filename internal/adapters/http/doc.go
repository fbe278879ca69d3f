// Package http implements a case executor that delegates work to a remote
// execution service.
//
// Each case is POSTed as JSON to <service_url>/v1/cases/execute with a
// bearer token. A 2xx response carrying a JSON object is the result; any
// other status, transport error or malformed body is an executor failure.
package http
