// Package domain holds the wire envelope, the control-frame variants, the
// broadcast record types, channel naming, and the interfaces the realtime
// layer depends on. It has no I/O and no dependencies on other internal
// packages.
package domain
