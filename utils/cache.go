package utils

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// UserCache holds display-ready user projections. Every realtime event
// carries only a bare user id, so peers hammer the user lookup endpoint;
// entries are invalidated on profile and status updates.
var UserCache = cache.New(time.Minute*5, time.Second*30)
