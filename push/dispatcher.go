package push

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/driftchat/backend/database"
	"github.com/driftchat/backend/models"
)

// notificationBody is the JSON payload shown by the service worker.
type notificationBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Send delivers a webpush notification to every subscription a user
// holds. Delivery is best-effort: individual failures are logged and
// never returned to the caller. Endpoints that report 404/410 are
// flagged dead so the background sweep can remove them.
func Send(userID uint, title, body, url string) {
	var subscriptions []models.PushSubscription
	if err := database.DB.Where("user_id = ? AND dead = false", userID).
		Find(&subscriptions).Error; err != nil {
		log.Printf("push: failed to load subscriptions for user %d: %v", userID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(notificationBody{Title: title, Body: body, URL: url})
	if err != nil {
		log.Printf("push: failed to marshal payload: %v", err)
		return
	}

	options := &webpush.Options{
		Subscriber:      os.Getenv("VAPID_SUBJECT"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		TTL:             60,
	}

	for _, sub := range subscriptions {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, options)
		if err != nil {
			log.Printf("push: delivery to user %d failed: %v", userID, err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			database.DB.Model(&models.PushSubscription{}).
				Where("id = ?", sub.ID).
				Update("dead", true)
		}
		resp.Body.Close()
	}
}
