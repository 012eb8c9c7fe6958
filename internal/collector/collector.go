// Package collector is the telemetry sink that stations post to. It keeps
// the latest record and serves it back to dashboards.
package collector

import (
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/t12-station/internal/telemetry"
)

// Store holds the latest telemetry record.
type Store struct {
	mu       sync.RWMutex
	latest   telemetry.Payload
	received time.Time
	count    uint64
}

// Put replaces the latest record.
func (s *Store) Put(p telemetry.Payload, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = p
	s.received = at
	s.count++
}

// Latest returns the latest record and when it arrived. The time is zero
// before the first post.
func (s *Store) Latest() (telemetry.Payload, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.received
}

// Count returns the number of accepted posts.
func (s *Store) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Router builds the HTTP routes:
//
//	POST /post      store a telemetry record
//	GET  /api/data  latest record
//	GET  /healthz   liveness with post count and age of the latest record
func Router(store *Store, now func() time.Time) *gin.Engine {
	if now == nil {
		now = time.Now
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/post", func(c *gin.Context) {
		var p telemetry.Payload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		store.Put(p, now())
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/api/data", func(c *gin.Context) {
		p, _ := store.Latest()
		c.JSON(http.StatusOK, p)
	})

	r.GET("/healthz", func(c *gin.Context) {
		_, at := store.Latest()
		h := gin.H{"status": "ok", "posts": store.Count()}
		if !at.IsZero() {
			h["age_seconds"] = int64(now().Sub(at).Seconds())
		}
		c.JSON(http.StatusOK, h)
	})

	return r
}

// MountView serves a static dashboard from dir:
//
//	GET /view/*  files under dir
//	GET /        dir/index.html
func MountView(r *gin.Engine, dir string) {
	r.Static("/view", dir)
	index := filepath.Join(dir, "index.html")
	r.GET("/", func(c *gin.Context) {
		c.File(index)
	})
}
