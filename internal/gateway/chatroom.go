package gateway

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sy264115809/techshow/internal/config"
)

// ChatRoomGateway abstracts the external chat-room provider. Rooms mirror
// channel lifecycle: they exist exactly while a channel is live.
type ChatRoomGateway interface {
	// Create registers a chat room named after the channel
	Create(ctx context.Context, roomID int64, name string) error
	// Destroy removes the chat room
	Destroy(ctx context.Context, roomID int64) error
	// Publish sends a message into the room on behalf of a user
	Publish(ctx context.Context, roomID, fromUserID int64, payload string) error
	// ParticipantCount queries how many users are in the room
	ParticipantCount(ctx context.Context, roomID int64) (int, error)
}

// chatRoomHTTP talks to a RongCloud-style IM provider over form-encoded HTTP
type chatRoomHTTP struct {
	cfg     config.ChatRoomConfig
	client  *http.Client
	breaker *CircuitBreaker
}

// NewChatRoomGateway creates a ChatRoomGateway backed by the configured provider
func NewChatRoomGateway(cfg config.ChatRoomConfig) ChatRoomGateway {
	return &chatRoomHTTP{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker(5, 30*time.Second),
	}
}

// Create registers a chat room named after the channel
func (g *chatRoomHTTP) Create(ctx context.Context, roomID int64, name string) error {
	form := url.Values{}
	form.Set(fmt.Sprintf("chatroom[%d]", roomID), name)
	return g.call(ctx, "chatroom.create", "/chatroom/create.json", form, nil)
}

// Destroy removes the chat room
func (g *chatRoomHTTP) Destroy(ctx context.Context, roomID int64) error {
	form := url.Values{}
	form.Set("chatroomId", strconv.FormatInt(roomID, 10))
	return g.call(ctx, "chatroom.destroy", "/chatroom/destroy.json", form, nil)
}

// Publish sends a message into the room on behalf of a user
func (g *chatRoomHTTP) Publish(ctx context.Context, roomID, fromUserID int64, payload string) error {
	form := url.Values{}
	form.Set("fromUserId", strconv.FormatInt(fromUserID, 10))
	form.Set("toChatroomId", strconv.FormatInt(roomID, 10))
	form.Set("objectName", "RC:TxtMsg")
	form.Set("content", payload)
	return g.call(ctx, "chatroom.publish", "/message/chatroom/publish.json", form, nil)
}

// ParticipantCount queries how many users are in the room
func (g *chatRoomHTTP) ParticipantCount(ctx context.Context, roomID int64) (int, error) {
	form := url.Values{}
	form.Set("chatroomId", strconv.FormatInt(roomID, 10))

	var out struct {
		Total int `json:"total"`
	}
	if err := g.call(ctx, "chatroom.query", "/chatroom/user/query.json", form, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

// call performs a signed form POST behind the circuit breaker
func (g *chatRoomHTTP) call(ctx context.Context, op, path string, form url.Values, out interface{}) error {
	err := g.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint+path, strings.NewReader(form.Encode()))
		if err != nil {
			return NewPermanent(op, err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		g.signHeaders(req)

		resp, err := g.client.Do(req)
		if err != nil {
			return classifyHTTP(op, 0, err)
		}
		defer resp.Body.Close() // nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return classifyHTTP(op, resp.StatusCode, nil)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return NewPermanent(op, fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	})
	if err == ErrCircuitOpen {
		return NewTransient(op, err)
	}
	return err
}

// signHeaders attaches the provider's nonce/timestamp/signature headers
func (g *chatRoomHTTP) signHeaders(req *http.Request) {
	nonce := randomNonce()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sum := sha1.Sum([]byte(g.cfg.AppSecret + nonce + timestamp))

	req.Header.Set("App-Key", g.cfg.AppKey)
	req.Header.Set("Nonce", nonce)
	req.Header.Set("Timestamp", timestamp)
	req.Header.Set("Signature", hex.EncodeToString(sum[:]))
}

func randomNonce() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
