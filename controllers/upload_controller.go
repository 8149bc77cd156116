package controllers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	MaxFileSize      = 5 * 1024 * 1024 // 5MB
	MaxAvatarSize    = 2 * 1024 * 1024 // 2MB
	UploadDir        = "./uploads"
	AllowedImageExts = ".jpg,.jpeg,.png,.gif,.webp"
	AllowedVideoExts = ".mp4,.webm,.mov"
	AllowedAudioExts = ".mp3,.wav,.ogg,.m4a,.webm"
	AllowedFileExts  = ".pdf,.doc,.docx,.txt,.zip"
)

func isAllowedExtension(ext, fileType string) bool {
	switch fileType {
	case "image":
		return strings.Contains(AllowedImageExts, ext)
	case "video":
		return strings.Contains(AllowedVideoExts, ext)
	case "audio":
		return strings.Contains(AllowedAudioExts, ext)
	case "file":
		return strings.Contains(AllowedFileExts, ext)
	}
	return false
}

// UploadFile godoc
// @Summary Upload a media attachment
// @Description Stores an image/video/audio/file attachment and returns its media descriptor for inclusion in a message
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Param type query string false "Attachment type: image, video, audio or file"
// @Success 201 {object} map[string]interface{} "Media descriptor"
// @Failure 400 {object} map[string]string "Invalid file"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/upload [post]
func UploadFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if file.Size > MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File size exceeds limit of 5MB (uploaded: %.2fMB)", float64(file.Size)/(1024*1024)),
		})
		return
	}

	fileType := c.DefaultQuery("type", "file")
	if fileType != "image" && fileType != "video" && fileType != "audio" && fileType != "file" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Must be: image, video, audio, or file"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !isAllowedExtension(ext, fileType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File extension %s not allowed for type %s", ext, fileType),
		})
		return
	}

	uploadPath := filepath.Join(UploadDir, fileType+"s")
	if err := os.MkdirAll(uploadPath, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload directory"})
		return
	}

	filename := fmt.Sprintf("%s-%d%s", uuid.New().String(), time.Now().Unix(), ext)
	fullPath := filepath.Join(uploadPath, filename)

	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"url":  fmt.Sprintf("/uploads/%ss/%s", fileType, filename),
		"type": fileType,
		"name": file.Filename,
		"size": file.Size,
	})
}

// UploadAvatar godoc
// @Summary Upload an avatar image
// @Description Stores an avatar image (2MB cap, images only) and returns its URL
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param avatar formData file true "Avatar image"
// @Success 201 {object} map[string]string "Avatar URL"
// @Failure 400 {object} map[string]string "Invalid file"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/upload-avatar [post]
func UploadAvatar(c *gin.Context) {
	file, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No avatar uploaded"})
		return
	}

	if file.Size > MaxAvatarSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Avatar size exceeds limit of 2MB"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !strings.Contains(AllowedImageExts, ext) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image format. Allowed: jpg, jpeg, png, gif, webp"})
		return
	}

	uploadPath := filepath.Join(UploadDir, "avatars")
	if err := os.MkdirAll(uploadPath, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload directory"})
		return
	}

	filename := fmt.Sprintf("%s-%d%s", uuid.New().String(), time.Now().Unix(), ext)
	fullPath := filepath.Join(uploadPath, filename)

	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save avatar"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"url": fmt.Sprintf("/uploads/avatars/%s", filename),
	})
}
