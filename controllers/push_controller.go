package controllers

import (
	"net/http"

	"github.com/driftchat/backend/database"
	"github.com/driftchat/backend/models"
	"github.com/driftchat/backend/push"
	"github.com/gin-gonic/gin"
)

type SubscriptionInput struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

type NotificationInput struct {
	UserID uint   `json:"user_id" binding:"required"`
	Title  string `json:"title" binding:"required"`
	Body   string `json:"body"`
	URL    string `json:"url"`
}

// SaveSubscription godoc
// @Summary Register a webpush subscription
// @Description Stores a webpush endpoint and its crypto keys for the authenticated user
// @Tags push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param subscription body SubscriptionInput true "Subscription"
// @Success 201 {object} map[string]string "Subscription saved"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/push-subscriptions [post]
func SaveSubscription(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input SubscriptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription := models.PushSubscription{
		UserID:   userID,
		Endpoint: input.Endpoint,
		P256dh:   input.Keys.P256dh,
		Auth:     input.Keys.Auth,
	}

	if err := database.DB.Create(&subscription).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save subscription"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Subscription saved"})
}

// DeleteSubscription godoc
// @Summary Remove a webpush subscription
// @Description Deletes the caller's subscription for the given endpoint
// @Tags push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param subscription body SubscriptionInput true "Subscription"
// @Success 200 {object} map[string]string "Subscription deleted"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/push-subscriptions [delete]
func DeleteSubscription(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input SubscriptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := database.DB.Where("endpoint = ? AND user_id = ?", input.Endpoint, userID).
		Delete(&models.PushSubscription{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription deleted"})
}

// SendNotification godoc
// @Summary Dispatch a push notification
// @Description Delivers a webpush notification to every subscription the target user holds; best-effort
// @Tags push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param notification body NotificationInput true "Notification"
// @Success 200 {object} map[string]bool "Dispatched"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /api/notifications [post]
func SendNotification(c *gin.Context) {
	var input NotificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	go push.Send(input.UserID, input.Title, input.Body, input.URL)

	c.JSON(http.StatusOK, gin.H{"success": true})
}
