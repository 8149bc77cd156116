package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/driftchat/backend/database"
	"github.com/driftchat/backend/models"
	"github.com/driftchat/backend/websocket"
	"github.com/gin-gonic/gin"
)

type JoinRoomInput struct {
	RoomID    uint   `json:"room_id"`
	UserIDs   []uint `json:"user_ids"`
	IsPrivate bool   `json:"is_private"`
	Name      string `json:"name"`
	Create    bool   `json:"create"`
}

type UpdateRoomInput struct {
	Name       string `json:"name" example:"Updated Chat Room"`
	Image      string `json:"image"`
	Background string `json:"background"`
}

// roomResponse shapes a room for list rendering: the room itself, its
// denormalized latest message and the caller's unread count.
func roomResponse(room models.Room, unreadCount int64) gin.H {
	return gin.H{
		"room":        room,
		"unreadCount": unreadCount,
	}
}

// GetRooms godoc
// @Summary Get all rooms for the authenticated user
// @Description Returns all chat rooms the authenticated user is a member of, with unread counts and latest messages
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of rooms"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms [get]
func GetRooms(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var memberships []models.Membership
	if err := database.DB.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch membership data"})
		return
	}

	roomIDs := make([]uint, 0, len(memberships))
	unreadMap := make(map[uint]int64)
	for _, m := range memberships {
		roomIDs = append(roomIDs, m.RoomID)
		unreadMap[m.RoomID] = m.UnreadCount
	}

	var rooms []models.Room
	if err := database.DB.Preload("LatestMessage").Preload("LatestMessage.User").
		Where("id IN ?", roomIDs).Find(&rooms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}

	response := []gin.H{}
	for _, room := range rooms {
		response = append(response, roomResponse(room, unreadMap[room.ID]))
	}

	c.JSON(http.StatusOK, gin.H{"rooms": response})
}

// JoinRoom godoc
// @Summary Join or create a room
// @Description Given a room id, joins it (idempotent; first join seeds the unread counter and emits a system message). Given member user ids and a privacy flag, finds the private room with that exact member set, or creates one when none exists or create=true forces it.
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body JoinRoomInput true "Join request"
// @Success 200 {object} map[string]interface{} "Resolved room"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/join [post]
func JoinRoom(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input JoinRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if input.RoomID == 0 && len(input.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room ID or user IDs are required"})
		return
	}

	if input.RoomID == 0 {
		resolvePrivateRoom(c, userID, input)
		return
	}

	var room models.Room
	if err := database.DB.First(&room, input.RoomID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	// Re-joining an already-joined room is a pure read.
	var existing models.Membership
	err := database.DB.Where("room_id = ? AND user_id = ?", input.RoomID, userID).First(&existing).Error
	if err != nil {
		if err := joinExistingRoom(userID, room); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
			return
		}
	}

	respondWithRoom(c, room.ID, userID)
}

// joinExistingRoom inserts the membership row, seeded with the room's
// current unread backlog, and emits the one-time join system message.
func joinExistingRoom(userID uint, room models.Room) error {
	var unread int64
	database.DB.Model(&models.Message{}).
		Where("room_id = ? AND is_read = false", room.ID).
		Count(&unread)

	membership := models.Membership{
		RoomID:      room.ID,
		UserID:      userID,
		UnreadCount: unread,
	}
	if err := database.DB.Create(&membership).Error; err != nil {
		return err
	}

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return err
	}

	system := models.Message{
		Content:         fmt.Sprintf("%s has joined the room", user.Name),
		RoomID:          room.ID,
		UserID:          userID,
		IsSystemMessage: true,
	}
	if err := database.DB.Create(&system).Error; err != nil {
		return err
	}
	database.DB.Preload("User").First(&system, system.ID)
	finalizeMessage(&system)
	return nil
}

// resolvePrivateRoom finds the room whose member set exactly matches the
// requested user ids under the given privacy flag; create=true forces a
// fresh room even when one matches.
func resolvePrivateRoom(c *gin.Context, userID uint, input JoinRoomInput) {
	var room *models.Room

	if !input.Create {
		room = findRoomByMembers(input.UserIDs, input.IsPrivate)
	}

	if room == nil {
		name := input.Name
		if name == "" {
			name = "Private Room"
		}
		created := models.Room{
			Name:      name,
			IsPrivate: input.IsPrivate,
		}
		if err := database.DB.Create(&created).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
			return
		}
		for _, id := range input.UserIDs {
			membership := models.Membership{RoomID: created.ID, UserID: id}
			database.DB.Create(&membership)
		}
		room = &created
	}

	respondWithRoom(c, room.ID, userID)
}

// findRoomByMembers returns the first room with the given privacy flag
// whose member set equals exactly the given user ids, or nil.
func findRoomByMembers(userIDs []uint, isPrivate bool) *models.Room {
	if len(userIDs) == 0 {
		return nil
	}

	// Candidate rooms: everything the first user is in with the right flag.
	var candidates []models.Room
	database.DB.
		Joins("JOIN memberships ON memberships.room_id = rooms.id").
		Where("memberships.user_id = ? AND rooms.is_private = ?", userIDs[0], isPrivate).
		Find(&candidates)

	for i := range candidates {
		var memberships []models.Membership
		database.DB.Where("room_id = ?", candidates[i].ID).Find(&memberships)
		memberIDs := make([]uint, 0, len(memberships))
		for _, m := range memberships {
			memberIDs = append(memberIDs, m.UserID)
		}
		if memberSetsEqual(memberIDs, userIDs) {
			return &candidates[i]
		}
	}
	return nil
}

// memberSetsEqual reports whether two id slices describe the same set,
// ignoring order and duplicates.
func memberSetsEqual(a, b []uint) bool {
	setA := make(map[uint]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	setB := make(map[uint]bool, len(b))
	for _, id := range b {
		setB[id] = true
	}
	if len(setA) != len(setB) {
		return false
	}
	for id := range setA {
		if !setB[id] {
			return false
		}
	}
	return true
}

func respondWithRoom(c *gin.Context, roomID, userID uint) {
	var room models.Room
	if err := database.DB.Preload("LatestMessage").Preload("LatestMessage.User").
		Preload("Users").First(&room, roomID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	var membership models.Membership
	database.DB.Where("room_id = ? AND user_id = ?", roomID, userID).First(&membership)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"room":    roomResponse(room, membership.UnreadCount),
	})
}

// GetRoom godoc
// @Summary Get details of a specific room
// @Description Returns a room with its members, latest message and the caller's unread count
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]interface{} "Room details"
// @Failure 400 {object} map[string]string "Invalid room ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Room not found"
// @Router /api/rooms/{id} [get]
func GetRoom(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}

	var membership models.Membership
	if err := database.DB.Where("room_id = ? AND user_id = ?", roomID, userID).First(&membership).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have access to this room"})
		return
	}

	respondWithRoom(c, uint(roomID), userID)
}

// UpdateRoom godoc
// @Summary Update a room's details
// @Description Updates a room's name, image or background and notifies members
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Param room body UpdateRoomInput true "Room Update"
// @Success 200 {object} map[string]string "Room updated successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id} [put]
func UpdateRoom(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}

	// Check if user is a member of the room
	var membership models.Membership
	if err := database.DB.Where("room_id = ? AND user_id = ?", roomID, userID).First(&membership).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have access to this room"})
		return
	}

	var input UpdateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if input.Name != "" {
		updates["name"] = input.Name
	}
	if input.Image != "" {
		updates["image"] = input.Image
	}
	if input.Background != "" {
		updates["background"] = input.Background
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if err := database.DB.Model(&models.Room{}).Where("id = ?", roomID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update room"})
		return
	}

	// Members patch the room in place from their global stream
	var room models.Room
	database.DB.First(&room, roomID)
	var memberships []models.Membership
	database.DB.Where("room_id = ?", roomID).Find(&memberships)
	for _, m := range memberships {
		websocket.NotifyUser(m.UserID, websocket.EventUpdate, websocket.TableRooms, room)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Room updated successfully"})
}

// SearchRooms godoc
// @Summary Search public rooms by name
// @Description Case-insensitive name search over non-private rooms, paginated, with a joined flag per result
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param query query string true "Search query"
// @Param page query int false "Page number (1-indexed)"
// @Success 200 {object} map[string]interface{} "Search results"
// @Failure 400 {object} map[string]string "Missing query"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/search [get]
func SearchRooms(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter is required"})
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	const pageSize = 10

	var rooms []models.Room
	if err := database.DB.Preload("LatestMessage").Preload("LatestMessage.User").
		Where("name ILIKE ? AND is_private = false", "%"+query+"%").
		Order("name ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rooms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search rooms"})
		return
	}

	var total int64
	database.DB.Model(&models.Room{}).
		Where("name ILIKE ? AND is_private = false", "%"+query+"%").
		Count(&total)

	items := make([]gin.H, 0, len(rooms))
	for _, room := range rooms {
		var joined int64
		database.DB.Model(&models.Membership{}).
			Where("room_id = ? AND user_id = ?", room.ID, userID).
			Count(&joined)
		items = append(items, gin.H{
			"room":     room,
			"isJoined": joined > 0,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items":   items,
		"hasMore": total > int64(page*pageSize),
	})
}
