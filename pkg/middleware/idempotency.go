package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// IdemStore marks a key as used within a TTL window. Set returns false when
// the key already exists, which means the request is a duplicate.
type IdemStore interface {
	Set(key string, ttl time.Duration) bool
}

type memoryIdemStore struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newMemoryIdemStore() *memoryIdemStore { return &memoryIdemStore{m: make(map[string]time.Time)} }

func (s *memoryIdemStore) Set(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if exp, ok := s.m[key]; ok && exp.After(now) {
		return false
	}
	s.m[key] = now.Add(ttl)
	return true
}

func (s *memoryIdemStore) gc() {
	for {
		time.Sleep(1 * time.Minute)
		now := time.Now()
		s.mu.Lock()
		for k, exp := range s.m {
			if exp.Before(now) {
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
	}
}

type IdempotencyConfig struct {
	HeaderName string        // defaults to Idempotency-Key
	TTL        time.Duration // duplicate rejection window
	Store      IdemStore     // optional external store (e.g. redis)
}

// Idempotency rejects a repeated mutating request carrying the same
// Idempotency-Key within the TTL window. Requests without the header pass
// through untouched.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	store := cfg.Store
	if store == nil {
		mem := newMemoryIdemStore()
		store = mem
		go mem.gc()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(cfg.HeaderName)
		if key == "" {
			c.Next()
			return
		}

		// scope the key to method+path+caller so reuse across endpoints is safe
		sum := sha256.Sum256([]byte(c.Request.Method + "|" + c.FullPath() + "|" + c.GetHeader("X-User-ID") + "|" + key))
		if !store.Set(hex.EncodeToString(sum[:]), cfg.TTL) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "duplicate request"})
			return
		}
		c.Next()
	}
}
