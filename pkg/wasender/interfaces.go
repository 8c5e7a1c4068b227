package wasender

import "context"

// Sender is the outbound message surface consumed by the agent's send tools
// and the intro/notice senders.
type Sender interface {
	SendText(ctx context.Context, to, text string, mentions []string, replyTo string) (string, error)
	SendImage(ctx context.Context, to, imageURL, caption string) (string, error)
	SendVideo(ctx context.Context, to, videoURL, caption string) (string, error)
	UpdatePresence(ctx context.Context, to, presence string) error
}

// Directory is the read side of the gateway: group and contact lookups used
// by the sync jobs.
type Directory interface {
	GetGroupMetadata(ctx context.Context, jid string) (*GroupMetadata, error)
	GetGroupParticipants(ctx context.Context, jid string) ([]GroupParticipant, error)
	GetGroupProfilePicture(ctx context.Context, jid string) (string, error)
	GetContactInfo(ctx context.Context, phone string) (*ContactInfo, error)
	GetContactProfilePicture(ctx context.Context, phone string) (string, error)
}

// Gateway is the full client surface.
type Gateway interface {
	Sender
	Directory
}
