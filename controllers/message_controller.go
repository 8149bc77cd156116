package controllers

import (
	"net/http"
	"strconv"

	"github.com/driftchat/backend/database"
	"github.com/driftchat/backend/models"
	"github.com/driftchat/backend/websocket"
	"github.com/gin-gonic/gin"
)

type CreateMessageInput struct {
	Content string           `json:"content" example:"Hello, everyone!"`
	Media   models.MediaList `json:"media"`
	RoomID  uint             `json:"room_id" binding:"required" example:"1"`
}

type ReadMessagesInput struct {
	MessageIDs []uint `json:"message_ids" binding:"required"`
	RoomID     uint   `json:"room_id" binding:"required"`
}

// GetMessages godoc
// @Summary Get a page of messages for a room
// @Description Returns one newest-first page of messages plus the total count and whether an older page exists
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param room_id query int true "Room ID"
// @Param page query int false "Page number (1-indexed)"
// @Param limit query int false "Page size (default 20)"
// @Success 200 {object} map[string]interface{} "Page of messages"
// @Failure 400 {object} map[string]string "Invalid room ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/messages [get]
func GetMessages(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	roomID, err := strconv.ParseUint(c.Query("room_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}

	// Check if user is a member of the room
	var membership models.Membership
	if err := database.DB.Where("room_id = ? AND user_id = ?", roomID, userID).First(&membership).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have access to this room"})
		return
	}

	skip := (page - 1) * limit

	var messages []models.Message
	if err := database.DB.Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Offset(skip).
		Limit(limit).
		Preload("User").
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	var total int64
	database.DB.Model(&models.Message{}).Where("room_id = ?", roomID).Count(&total)

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"nextPage": int64(skip+len(messages)) < total,
		"total":    total,
	})
}

// CreateMessage godoc
// @Summary Create a new message
// @Description Creates a message, bumps the room's latest message, increments every other member's unread counter and broadcasts the insert
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param message body CreateMessageInput true "Message Creation"
// @Success 201 {object} map[string]interface{} "Message sent successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/messages [post]
func CreateMessage(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if input.Content == "" && len(input.Media) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message must have content or media"})
		return
	}

	// Check if user is a member of the room
	var membership models.Membership
	if err := database.DB.Where("room_id = ? AND user_id = ?", input.RoomID, userID).First(&membership).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have access to this room"})
		return
	}

	// Create message
	message := models.Message{
		Content: input.Content,
		Media:   input.Media,
		RoomID:  input.RoomID,
		UserID:  userID,
	}

	if err := database.DB.Create(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create message"})
		return
	}

	// Load user data for the message
	database.DB.Preload("User").First(&message, message.ID)

	finalizeMessage(&message)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Message sent successfully",
		"data":    message,
	})
}

// finalizeMessage applies the side effects of a persisted message:
// latest-message bump, unread increments and realtime fan-out. Shared
// by the HTTP handler and the join flow's system messages. Push
// notifications are not dispatched here; the sender's client triggers
// them through the notifications endpoint.
func finalizeMessage(message *models.Message) {
	// Denormalized latest message for list rendering
	database.DB.Model(&models.Room{}).
		Where("id = ?", message.RoomID).
		Update("latest_message_id", message.ID)

	// Atomic unread bump for every other member. Never done
	// read-modify-write: concurrent sends must not lose increments.
	// System messages stay out of the unread counters.
	if !message.IsSystemMessage {
		database.DB.Exec(
			"UPDATE memberships SET unread_count = unread_count + 1 WHERE room_id = ? AND user_id <> ?",
			message.RoomID, message.UserID,
		)
	}

	// Row event on the room channel for open-room subscribers
	websocket.BroadcastRowEvent(message.RoomID, websocket.EventInsert, websocket.TableMessages, message)

	// Global-stream events so members patch their room lists without
	// reloading: the fresh membership row and the message itself.
	var memberships []models.Membership
	database.DB.Where("room_id = ?", message.RoomID).Find(&memberships)
	for _, m := range memberships {
		if m.UserID == message.UserID {
			continue
		}
		websocket.NotifyUser(m.UserID, websocket.EventUpdate, websocket.TableMemberships, m)
		websocket.NotifyUser(m.UserID, websocket.EventInsert, websocket.TableMessages, message)
	}
}

// ReadMessages godoc
// @Summary Acknowledge messages as read
// @Description Flips the read flag on the given messages (no-op for already-read ids) and atomically decrements the caller's unread counter by the number actually transitioned, floored at zero
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param ack body ReadMessagesInput true "Read acknowledgement"
// @Success 200 {object} map[string]interface{} "New unread count"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/messages/read [post]
func ReadMessages(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input ReadMessagesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var membership models.Membership
	if err := database.DB.Where("room_id = ? AND user_id = ?", input.RoomID, userID).First(&membership).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have access to this room"})
		return
	}

	// Flip only rows that are still unread; the affected-row count is
	// the exact amount to decrement, so acking an already-read id is a
	// no-op on the counter.
	result := database.DB.Model(&models.Message{}).
		Where("id IN ? AND room_id = ? AND is_read = false", input.MessageIDs, input.RoomID).
		Update("is_read", true)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark messages read"})
		return
	}

	unreadCount := membership.UnreadCount
	if result.RowsAffected > 0 {
		row := database.DB.Raw(
			"UPDATE memberships SET unread_count = GREATEST(0, unread_count - ?) WHERE user_id = ? AND room_id = ? RETURNING unread_count",
			result.RowsAffected, userID, input.RoomID,
		).Row()
		if err := row.Scan(&unreadCount); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update unread count"})
			return
		}

		// Senders watching the room see the read flag flip
		var updated []models.Message
		database.DB.Where("id IN ? AND room_id = ?", input.MessageIDs, input.RoomID).
			Preload("User").
			Find(&updated)
		for i := range updated {
			websocket.BroadcastRowEvent(input.RoomID, websocket.EventUpdate, websocket.TableMessages, &updated[i])
		}

		// The reader's other sessions patch their room list
		membership.UnreadCount = unreadCount
		websocket.NotifyUser(userID, websocket.EventUpdate, websocket.TableMemberships, membership)
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": unreadCount})
}
