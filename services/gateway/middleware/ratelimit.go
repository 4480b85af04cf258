// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxLimiterEntries caps the per-key limiter map so an attacker rotating
// keys cannot grow it without bound.
const maxLimiterEntries = 10000

// RateLimiter applies a token-bucket limit per caller. Callers are keyed by
// credential cookie when present, falling back to client IP for
// unauthenticated requests.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing perSecond sustained requests with
// the given burst per caller.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(perSecond),
		burst:    burst,
	}
}

func (r *RateLimiter) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[key]; ok {
		return l
	}
	if len(r.limiters) >= maxLimiterEntries {
		// Reset rather than evict; simpler, and a full map means abuse.
		r.limiters = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(r.perSec, r.burst)
	r.limiters[key] = l
	return l
}

// Middleware returns the gin handler enforcing the limit.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := c.Cookie(CredentialCookie)
		if err != nil || key == "" {
			key = c.ClientIP()
		}
		if !r.limiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"code": "rate_limited", "message": "too many requests"},
			})
			return
		}
		c.Next()
	}
}
