// Package realtime implements the live broadcast layer: the hub owning every
// WebSocket connection and all subscription state, the registry mapping
// channels to subscribers, and the dispatcher producers publish through.
package realtime
