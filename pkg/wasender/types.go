package wasender

import "time"

// Presence states accepted by the gateway's presence endpoint.
const (
	PresenceComposing = "composing"
	PresenceAvailable = "available"
)

// ClientConfig configures the gateway client.
type ClientConfig struct {
	// BaseURL is the gateway API root, e.g. "https://wasenderapi.com/api".
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// ProtectionInterval is the minimum spacing between outbound sends,
	// enforced process-wide.
	ProtectionInterval time.Duration
	// DeliveryEnabled gates real sends; when false the client logs the
	// payload and reports success without contacting the gateway.
	DeliveryEnabled bool
}

// SendMessageRequest is the POST /send-message body. Exactly one of Text,
// ImageURL or VideoURL carries the content.
type SendMessageRequest struct {
	To       string   `json:"to"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
	VideoURL string   `json:"videoUrl,omitempty"`
	Caption  string   `json:"caption,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	// ReplyTo quotes an earlier message by its gateway id.
	ReplyTo string `json:"replyTo,omitempty"`
}

// SendMessageResponse is the gateway's acknowledgement of a send.
type SendMessageResponse struct {
	Success bool `json:"success"`
	Data    struct {
		MessageID string `json:"msgId"`
	} `json:"data"`
}

// PresenceRequest is the POST /send-presence body.
type PresenceRequest struct {
	To       string `json:"to"`
	Presence string `json:"presence"`
}

// GroupMetadata is the gateway's view of a group's profile.
type GroupMetadata struct {
	JID         string `json:"jid"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// GroupParticipant is one member in a group participant listing. Admin is
// empty for regular members, "admin" or "superadmin" otherwise.
type GroupParticipant struct {
	JID      string `json:"jid"`
	LID      string `json:"lid"`
	PhoneJID string `json:"phoneJid"`
	Admin    string `json:"admin"`
}

// ContactInfo is the gateway's account lookup for a phone number.
type ContactInfo struct {
	Exists bool   `json:"exists"`
	JID    string `json:"jid"`
}

type groupMetadataResponse struct {
	Success bool          `json:"success"`
	Data    GroupMetadata `json:"data"`
}

type groupParticipantsResponse struct {
	Success bool               `json:"success"`
	Data    []GroupParticipant `json:"data"`
}

type profilePictureResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ImgURL string `json:"imgUrl"`
	} `json:"data"`
}

type contactInfoResponse struct {
	Success bool        `json:"success"`
	Data    ContactInfo `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
