package transcript

import "time"

// Canonical is the single normalized transcript shape every provider response
// is converted into before it is persisted or returned to a client.
type Canonical struct {
	Metadata Metadata `json:"metadata"`
	Results  Results  `json:"results"`
}

type Metadata struct {
	RequestID       string    `json:"requestId"`
	CreatedAt       time.Time `json:"createdAt"`
	DurationSeconds float64   `json:"durationSeconds"`
	ChannelCount    int       `json:"channelCount"`
	ModelTag        string    `json:"modelTag"`
}

type Results struct {
	// PrimaryText is the provider's best single transcript string. It is
	// populated whenever the provider returned any text, even when no
	// speaker-attributed utterances exist.
	PrimaryText string      `json:"primaryText"`
	Utterances  []Utterance `json:"utterances"`
}

// Utterance is one contiguous speech segment attributed to a single speaker.
type Utterance struct {
	SpeakerLabel string   `json:"speakerLabel"`
	Text         string   `json:"text"`
	StartSeconds float64  `json:"startSeconds"`
	EndSeconds   float64  `json:"endSeconds"`
	Confidence   *float64 `json:"confidence"`
}
