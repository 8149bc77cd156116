package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/driftchat/backend/models"
)

// APIClient is the Gateway over the HTTP API. A bearer token authorizes
// every request.
type APIClient struct {
	baseURL     string
	httpClient  *http.Client
	accessToken string
}

// NewAPIClient builds a client for the given server root, e.g.
// "http://localhost:8080".
func NewAPIClient(serverURL, accessToken string) *APIClient {
	return &APIClient{
		baseURL:     serverURL + "/api",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		accessToken: accessToken,
	}
}

func (c *APIClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.doRequest(req)
}

func (c *APIClient) post(ctx context.Context, path string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	return c.doRequest(req)
}

func (c *APIClient) doRequest(req *http.Request) ([]byte, error) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error: %s, Response: %s", resp.Status, string(body))
	}
	return body, nil
}

// GetMessages fetches one newest-first page of room history.
func (c *APIClient) GetMessages(ctx context.Context, roomID uint, page, limit int) (MessagesPage, error) {
	query := url.Values{}
	query.Set("room_id", strconv.FormatUint(uint64(roomID), 10))
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/messages?"+query.Encode())
	if err != nil {
		return MessagesPage{}, err
	}

	var result MessagesPage
	if err := json.Unmarshal(body, &result); err != nil {
		return MessagesPage{}, err
	}
	return result, nil
}

// CreateMessage persists a message and returns the authoritative row.
func (c *APIClient) CreateMessage(ctx context.Context, roomID uint, content string, media models.MediaList) (Message, error) {
	body, err := c.post(ctx, "/messages", map[string]interface{}{
		"room_id": roomID,
		"content": content,
		"media":   media,
	})
	if err != nil {
		return Message{}, err
	}

	var result struct {
		Data Message `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Message{}, err
	}
	return result.Data, nil
}

// ReadMessages acknowledges the messages as read and returns the new
// unread count.
func (c *APIClient) ReadMessages(ctx context.Context, roomID uint, messageIDs []uint) (int64, error) {
	body, err := c.post(ctx, "/messages/read", map[string]interface{}{
		"room_id":     roomID,
		"message_ids": messageIDs,
	})
	if err != nil {
		return 0, err
	}

	var result struct {
		UnreadCount int64 `json:"unread_count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

// roomEnvelope is the server's room response wrapper.
type roomEnvelope struct {
	Success bool `json:"success"`
	Room    struct {
		Room        wireRoom `json:"room"`
		UnreadCount int64    `json:"unreadCount"`
	} `json:"room"`
}

type wireRoom struct {
	ID            uint                `json:"id"`
	Name          string              `json:"name"`
	IsPrivate     bool                `json:"is_private"`
	Image         string              `json:"image"`
	Background    string              `json:"background"`
	LatestMessage *Message            `json:"latest_message,omitempty"`
	Users         []models.PublicUser `json:"users,omitempty"`
}

func (e roomEnvelope) summary() RoomSummary {
	return RoomSummary{
		ID:            e.Room.Room.ID,
		Name:          e.Room.Room.Name,
		IsPrivate:     e.Room.Room.IsPrivate,
		Image:         e.Room.Room.Image,
		Background:    e.Room.Room.Background,
		UnreadCount:   e.Room.UnreadCount,
		LatestMessage: e.Room.Room.LatestMessage,
	}
}

// JoinRoom joins a room by id or resolves a private room by member set.
func (c *APIClient) JoinRoom(ctx context.Context, req JoinRequest) (RoomSummary, error) {
	body, err := c.post(ctx, "/rooms/join", req)
	if err != nil {
		return RoomSummary{}, err
	}

	var envelope roomEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return RoomSummary{}, err
	}
	return envelope.summary(), nil
}

// GetUser looks up a user's public profile.
func (c *APIClient) GetUser(ctx context.Context, userID uint) (models.PublicUser, error) {
	body, err := c.get(ctx, "/users/"+strconv.FormatUint(uint64(userID), 10))
	if err != nil {
		return models.PublicUser{}, err
	}

	var user models.PublicUser
	if err := json.Unmarshal(body, &user); err != nil {
		return models.PublicUser{}, err
	}
	return user, nil
}

// UserStatus polls a peer's presence.
func (c *APIClient) UserStatus(ctx context.Context, userID uint) (Status, error) {
	body, err := c.get(ctx, "/users/"+strconv.FormatUint(uint64(userID), 10)+"/status")
	if err != nil {
		return Status{}, err
	}

	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// UpdateStatus reports the local user's online transition. No context:
// it is also called from teardown paths where the caller's context is
// already gone.
func (c *APIClient) UpdateStatus(isOnline bool) error {
	_, err := c.post(context.Background(), "/users/update-status", map[string]interface{}{
		"is_online": isOnline,
	})
	return err
}

// RoomMembers returns the member ids of a room the caller belongs to.
func (c *APIClient) RoomMembers(ctx context.Context, roomID uint) ([]uint, error) {
	body, err := c.get(ctx, "/rooms/"+strconv.FormatUint(uint64(roomID), 10))
	if err != nil {
		return nil, err
	}

	var envelope roomEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}

	members := make([]uint, 0, len(envelope.Room.Room.Users))
	for _, user := range envelope.Room.Room.Users {
		members = append(members, user.ID)
	}
	return members, nil
}

// Notify asks the server to deliver a push notification to a user.
func (c *APIClient) Notify(ctx context.Context, userID uint, title, body, link string) error {
	_, err := c.post(ctx, "/notifications", map[string]interface{}{
		"user_id": userID,
		"title":   title,
		"body":    body,
		"url":     link,
	})
	return err
}

// Rooms fetches the caller's room list as summaries.
func (c *APIClient) Rooms(ctx context.Context) ([]RoomSummary, error) {
	body, err := c.get(ctx, "/rooms")
	if err != nil {
		return nil, err
	}

	var result struct {
		Rooms []struct {
			Room        wireRoom `json:"room"`
			UnreadCount int64    `json:"unreadCount"`
		} `json:"rooms"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	rooms := make([]RoomSummary, 0, len(result.Rooms))
	for _, entry := range result.Rooms {
		rooms = append(rooms, RoomSummary{
			ID:            entry.Room.ID,
			Name:          entry.Room.Name,
			IsPrivate:     entry.Room.IsPrivate,
			Image:         entry.Room.Image,
			Background:    entry.Room.Background,
			UnreadCount:   entry.UnreadCount,
			LatestMessage: entry.Room.LatestMessage,
		})
	}
	return rooms, nil
}

var _ Gateway = (*APIClient)(nil)
