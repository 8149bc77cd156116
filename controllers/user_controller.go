package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/driftchat/backend/database"
	"github.com/driftchat/backend/models"
	"github.com/driftchat/backend/utils"
	"github.com/gin-gonic/gin"
	cache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

type UpdateStatusInput struct {
	IsOnline bool `json:"is_online"`
}

type UpdateProfileInput struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// GetUser godoc
// @Summary Get a display-ready user
// @Description Returns the public projection of a user (name, avatar, online state)
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.PublicUser "User"
// @Failure 400 {object} map[string]string "Invalid user ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "User not found"
// @Router /api/users/{id} [get]
func GetUser(c *gin.Context) {
	id := c.Param("id")
	if cached, found := utils.UserCache.Get(id); found {
		c.JSON(http.StatusOK, cached)
		return
	}

	userID, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	public := user.Public()
	utils.UserCache.Set(id, public, cache.DefaultExpiration)
	c.JSON(http.StatusOK, public)
}

// GetUserStatus godoc
// @Summary Get a user's online status
// @Description Returns the online flag and last-seen timestamp, polled while a private room is open
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} map[string]interface{} "Status"
// @Failure 400 {object} map[string]string "Invalid user ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "User not found"
// @Router /api/users/{id}/status [get]
func GetUserStatus(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := database.DB.Select("is_online", "last_seen").First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"is_online": user.IsOnline,
		"last_seen": user.LastSeen,
	})
}

// UpdateStatus godoc
// @Summary Report online/offline transition
// @Description Sets the caller's online flag and stamps last seen. Reached by fire-and-forget beacons on page teardown, so the token may arrive as a query parameter.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param status body UpdateStatusInput true "Status"
// @Success 200 {object} models.PublicUser "Updated user"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/users/update-status [post]
func UpdateStatus(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	if err := database.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"is_online": input.IsOnline,
		"last_seen": now,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	utils.UserCache.Delete(strconv.FormatUint(uint64(userID), 10))

	var user models.User
	database.DB.First(&user, userID)
	c.JSON(http.StatusOK, user.Public())
}

// UpdateProfile godoc
// @Summary Update the caller's profile
// @Description Updates display name and avatar URL
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body UpdateProfileInput true "Profile"
// @Success 200 {object} models.PublicUser "Updated user"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/users/me [put]
func UpdateProfile(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input UpdateProfileInput
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
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	utils.UserCache.Delete(strconv.FormatUint(uint64(userID), 10))

	var user models.User
	database.DB.First(&user, userID)
	c.JSON(http.StatusOK, user.Public())
}

// SearchUsers godoc
// @Summary Search users
// @Description Name/email search, or online-only listing, paginated and excluding the caller
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param query query string false "Search query"
// @Param online query bool false "List online users instead of searching"
// @Param page query int false "Page number (1-indexed)"
// @Success 200 {object} map[string]interface{} "Search results"
// @Failure 400 {object} map[string]string "Missing query"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/users/search [get]
func SearchUsers(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	query := c.Query("query")
	online := c.Query("online") == "true"
	if !online && query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter is required when not searching for online users"})
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	const pageSize = 10

	baseQuery := func() *gorm.DB {
		tx := database.DB.Model(&models.User{}).Where("id <> ?", userID)
		if online {
			return tx.Where("is_online = true")
		}
		pattern := "%" + query + "%"
		return tx.Where("name ILIKE ? OR email ILIKE ?", pattern, pattern)
	}

	var total int64
	baseQuery().Count(&total)

	var users []models.User
	if err := baseQuery().Order("name ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search users"})
		return
	}

	items := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		items = append(items, u.Public())
	}

	c.JSON(http.StatusOK, gin.H{
		"items":   items,
		"hasMore": total > int64(page*pageSize),
	})
}
