// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package cache provides a content-addressed cache of search-provider
responses, backed by Redis, with graceful degradation when Redis is
unavailable.

# Overview

Manager wraps a go-redis client behind a narrow Get/Set/Delete surface
keyed by Key, which derives a stable cache key from a provider name, a
query string, and a parameter set. A construction-time Ping failure does
not return an error: the Manager instead marks itself unavailable and every
subsequent operation becomes a no-op (Set) or a reported miss (Get), so a
cache outage degrades a caller to "always call the live provider" rather
than failing outright.

# Core types

  - Manager: holds the Redis client and availability state, exposes
    Get/Set/Delete/GetJSON/SetJSON plus GetStats for hit/miss counters.
  - Config: Redis connection parameters and default TTL.
  - Stats: cumulative hit/miss counts and current availability.

# Key semantics

A miss (key never set) and a degraded cache (Redis down) are
indistinguishable to callers by design — both surface as Get returning
(nil, false). ErrCacheMiss exists for call sites that prefer an error
return over a bool.
*/
package cache
