// Package wasender is the HTTP client for the WASender WhatsApp gateway.
// All message sends pass through a process-wide gate that spaces them at
// least one protection interval apart.
package wasender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/smaller-world/happytown.life/internal/errors"

	"github.com/sirupsen/logrus"
)

// Client talks to the WASender HTTP API.
type Client struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	gate            *sendGate
	deliveryEnabled bool
	logger          *logrus.Logger
}

func NewClient(cfg ClientConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		httpClient:      &http.Client{Timeout: timeout},
		gate:            newSendGate(cfg.ProtectionInterval),
		deliveryEnabled: cfg.DeliveryEnabled,
		logger:          logger,
	}
}

// SendText delivers a text message to a chat. Mentions carries the JIDs of
// users @-mentioned in the body; replyTo quotes an earlier message by its
// gateway id.
func (c *Client) SendText(ctx context.Context, to, text string, mentions []string, replyTo string) (string, error) {
	return c.send(ctx, SendMessageRequest{
		To:       to,
		Text:     text,
		Mentions: mentions,
		ReplyTo:  replyTo,
	})
}

// SendImage delivers an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) (string, error) {
	return c.send(ctx, SendMessageRequest{To: to, ImageURL: imageURL, Caption: caption})
}

// SendVideo delivers a video by URL with an optional caption.
func (c *Client) SendVideo(ctx context.Context, to, videoURL, caption string) (string, error) {
	return c.send(ctx, SendMessageRequest{To: to, VideoURL: videoURL, Caption: caption})
}

func (c *Client) send(ctx context.Context, req SendMessageRequest) (string, error) {
	if !c.deliveryEnabled {
		c.logger.WithFields(logrus.Fields{
			"to":   req.To,
			"text": req.Text,
		}).Info("Delivery disabled, not sending message")
		return "delivery-disabled", nil
	}

	if err := c.gate.wait(ctx); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "send gate interrupted")
	}

	var resp SendMessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/send-message", req, &resp); err != nil {
		return "", err
	}
	return resp.Data.MessageID, nil
}

// UpdatePresence pushes a typing indicator state. Presence updates do not
// go through the send gate; they are not message sends.
func (c *Client) UpdatePresence(ctx context.Context, to, presence string) error {
	return c.doRequest(ctx, http.MethodPost, "/send-presence", PresenceRequest{To: to, Presence: presence}, nil)
}

// GetGroupMetadata fetches the group's current subject and description.
func (c *Client) GetGroupMetadata(ctx context.Context, jid string) (*GroupMetadata, error) {
	var resp groupMetadataResponse
	path := "/groups/" + url.PathEscape(jid) + "/metadata"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetGroupParticipants fetches the group's current member list.
func (c *Client) GetGroupParticipants(ctx context.Context, jid string) ([]GroupParticipant, error) {
	var resp groupParticipantsResponse
	path := "/groups/" + url.PathEscape(jid) + "/participants"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetGroupProfilePicture fetches the group's picture URL. The gateway
// answers 422 when no picture is set; that surfaces as a NOT_FOUND_UPSTREAM
// error for the caller to treat as absent.
func (c *Client) GetGroupProfilePicture(ctx context.Context, jid string) (string, error) {
	var resp profilePictureResponse
	path := "/groups/" + url.PathEscape(jid) + "/picture"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Data.ImgURL, nil
}

// GetContactInfo resolves a phone number to its WhatsApp account, if any.
func (c *Client) GetContactInfo(ctx context.Context, phone string) (*ContactInfo, error) {
	var resp contactInfoResponse
	path := "/on-whatsapp/" + url.PathEscape(phone)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetContactProfilePicture fetches a contact's picture URL; 422 means the
// contact has none.
func (c *Client) GetContactProfilePicture(ctx context.Context, phone string) (string, error) {
	var resp profilePictureResponse
	path := "/contacts/" + url.PathEscape(phone) + "/picture"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Data.ImgURL, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransient, "gateway request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransient, "failed to read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classifyStatus(resp.StatusCode, respBody, method, path)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeTransient, "undecodable gateway response")
		}
	}
	return nil
}

// classifyStatus maps gateway HTTP statuses onto the error taxonomy the
// dispatcher's retry policy understands.
func (c *Client) classifyStatus(status int, body []byte, method, path string) error {
	var gw errorResponse
	_ = json.Unmarshal(body, &gw)
	detail := gw.Message
	if detail == "" {
		detail = string(body)
	}
	msg := fmt.Sprintf("%s %s: status %d: %s", method, path, status, detail)

	switch {
	case status == http.StatusUnprocessableEntity:
		return apperrors.New(apperrors.ErrCodeNotFoundUpstream, msg)
	case status == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrCodeRateLimited, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.New(apperrors.ErrCodeForbidden, msg)
	case status >= 500:
		return apperrors.New(apperrors.ErrCodeTransient, msg)
	default:
		return apperrors.New(apperrors.ErrCodeInternal, msg)
	}
}
