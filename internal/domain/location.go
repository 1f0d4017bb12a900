package domain

// PlayerIdentity identifies the player a location payload belongs to.
type PlayerIdentity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// TeamRef is the abbreviated team reference carried inside realtime payloads.
type TeamRef struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// Coordinates is an inbound player position as seen by this client.
type Coordinates struct {
	UserID    string   `json:"user_id"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Alt       *float64 `json:"alt,omitempty"`
	Precision *float64 `json:"precision,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// LocationPayload is the last known position of one player. The reconciler
// keeps one entry per user id; a newer payload replaces the previous one.
type LocationPayload struct {
	User PlayerIdentity `json:"user"`
	Team TeamRef        `json:"team"`
	Loc  Coordinates    `json:"loc"`
}

// LocationSample is the device's own position, as published to the server.
// Unlike Coordinates it carries no user id; the server derives the sender
// from the authenticated connection.
type LocationSample struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Alt       *float64 `json:"alt,omitempty"`
	Precision *float64 `json:"precision,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// LocationPublish is the outbound publish body, identical over the realtime
// channel and the REST fallback endpoint.
type LocationPublish struct {
	Location LocationSample `json:"location"`
	GameID   string         `json:"game_id"`
}
