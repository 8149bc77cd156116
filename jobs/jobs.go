package jobs

import (
	"log"
	"time"

	"github.com/driftchat/backend/database"
	"github.com/driftchat/backend/models"
	"github.com/go-co-op/gocron"
)

// staleAfter is how long a user can sit online without a status report
// before the sweep marks them offline. Offline beacons fired during page
// unload are best-effort and sometimes never arrive.
const staleAfter = 5 * time.Minute

// Start schedules the background maintenance jobs.
func Start() {
	s := gocron.NewScheduler(time.UTC)

	s.Every(1).Minute().Do(sweepStalePresence)
	s.Every(1).Hour().Do(pruneDeadSubscriptions)

	s.StartAsync()
}

func sweepStalePresence() {
	cutoff := time.Now().Add(-staleAfter)
	result := database.DB.Model(&models.User{}).
		Where("is_online = true AND last_seen < ?", cutoff).
		Update("is_online", false)
	if result.Error != nil {
		log.Printf("jobs: presence sweep failed: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("jobs: marked %d stale users offline", result.RowsAffected)
	}
}

func pruneDeadSubscriptions() {
	result := database.DB.Where("dead = true").Delete(&models.PushSubscription{})
	if result.Error != nil {
		log.Printf("jobs: subscription pruning failed: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("jobs: pruned %d dead push subscriptions", result.RowsAffected)
	}
}
