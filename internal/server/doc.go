// Package server exposes the HTTP surface of the broadcast node: the /ws
// upgrade endpoint, health probes, and Prometheus metrics. Accept-side
// connection limits and the origin policy live here; everything past the
// upgrade is owned by the realtime hub.
package server
