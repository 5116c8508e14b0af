package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitReason describes why a connection was rejected at accept time.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits protects the broadcast node at accept time: a global
// concurrent-connection cap, a per-address cap, and a per-address token-bucket
// accept rate. This is transport protection only; the per-frame quota is the
// hub's Redis limiter.
type ConnectionLimits struct {
	globalMax     int64
	globalCurrent atomic.Int64

	mu       sync.Mutex
	perIP    map[string]int
	perIPMax int

	buckets    map[string]*acceptBucket
	acceptRate rate.Limit
	burst      int
	cleanupAt  time.Time
}

type acceptBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketCleanupInterval = 5 * time.Minute

// NewConnectionLimits creates a combined accept limiter.
func NewConnectionLimits(globalMax int64, perIPMax int, acceptsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		globalMax:  globalMax,
		perIP:      make(map[string]int),
		perIPMax:   perIPMax,
		buckets:    make(map[string]*acceptBucket),
		acceptRate: rate.Limit(acceptsPerSecond),
		burst:      burst,
		cleanupAt:  time.Now().Add(bucketCleanupInterval),
	}
}

// Acquire attempts to take a connection slot for the given address. On
// rejection the returned reason names the exhausted limit.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowAccept(ip) {
		return false, LimitReasonRate
	}

	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] >= l.perIPMax {
		l.globalCurrent.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

// Release frees the slots taken by Acquire. A release without a matching
// acquire is ignored.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	count := l.perIP[ip]
	if count == 0 {
		l.mu.Unlock()
		return
	}
	l.perIP[ip] = count - 1
	if l.perIP[ip] == 0 {
		delete(l.perIP, ip)
	}
	l.mu.Unlock()

	l.globalCurrent.Add(-1)
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.globalCurrent.Load()
		if current >= l.globalMax {
			return false
		}
		if l.globalCurrent.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) allowAccept(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Now().After(l.cleanupAt) {
		l.cleanupBuckets()
		l.cleanupAt = time.Now().Add(bucketCleanupInterval)
	}

	bucket, ok := l.buckets[ip]
	if !ok {
		bucket = &acceptBucket{limiter: rate.NewLimiter(l.acceptRate, l.burst)}
		l.buckets[ip] = bucket
	}
	bucket.lastSeen = time.Now()
	return bucket.limiter.Allow()
}

// cleanupBuckets drops buckets idle for two cleanup intervals. Must be called
// with mu held.
func (l *ConnectionLimits) cleanupBuckets() {
	cutoff := time.Now().Add(-2 * bucketCleanupInterval)
	for ip, bucket := range l.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// Global exposes the global counter for health reporting.
func (l *ConnectionLimits) Global() *globalView {
	return &globalView{l}
}

type globalView struct{ l *ConnectionLimits }

func (g *globalView) Current() int64 { return g.l.globalCurrent.Load() }
func (g *globalView) Max() int64     { return g.l.globalMax }

// UniqueIPs returns the number of addresses with active connections.
func (l *ConnectionLimits) UniqueIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perIP)
}
