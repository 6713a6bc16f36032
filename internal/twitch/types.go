package twitch

import "time"

// Broadcast holds the metadata of a live broadcast.
type Broadcast struct {
	// ID is the stream id, distinct from the archive video id.
	ID          string
	Login       string
	Title       string
	GameName    string
	CreatedAt   time.Time
	ViewerCount int
}

// PlaybackAccessTokenParams is the input object of the playback access
// token query. The GraphQL type name is derived from this type's name, so
// it must match the gateway schema exactly.
type PlaybackAccessTokenParams struct {
	Platform      string `json:"platform"`
	PlayerBackend string `json:"playerBackend"`
	PlayerType    string `json:"playerType"`
}
