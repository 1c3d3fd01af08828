package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NormalizationError reports an unexpected or malformed provider payload.
type NormalizationError struct {
	Provider string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s response: %s", e.Provider, e.Reason)
}

// assemblyAIResponse mirrors the fields we read from a completed AssemblyAI
// transcript. Timestamps are in milliseconds.
type assemblyAIResponse struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Confidence    *float64 `json:"confidence"`
	AudioDuration float64  `json:"audio_duration"`
	Utterances    []struct {
		Speaker    string   `json:"speaker"`
		Text       string   `json:"text"`
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Confidence *float64 `json:"confidence"`
	} `json:"utterances"`
}

// deepgramResponse mirrors the fields we read from a Deepgram prerecorded
// result. Timestamps are already in seconds.
type deepgramResponse struct {
	Metadata struct {
		RequestID string   `json:"request_id"`
		Created   string   `json:"created"`
		Duration  float64  `json:"duration"`
		Channels  int      `json:"channels"`
		Models    []string `json:"models"`
	} `json:"metadata"`
	Results *struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string         `json:"transcript"`
				Confidence *float64       `json:"confidence"`
				Words      []deepgramWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Speaker    int      `json:"speaker"`
			Transcript string   `json:"transcript"`
			Start      float64  `json:"start"`
			End        float64  `json:"end"`
			Confidence *float64 `json:"confidence"`
		} `json:"utterances"`
	} `json:"results"`
}

type deepgramWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Speaker        *int    `json:"speaker"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
}

// Normalize converts a raw provider response into the canonical transcript
// shape. It is deterministic for a fixed input: createdAt is only used when
// the payload itself carries no creation time.
func Normalize(provider string, raw json.RawMessage, createdAt time.Time) (*Canonical, error) {
	switch provider {
	case "assemblyai":
		return normalizeAssemblyAI(raw, createdAt)
	case "deepgram":
		return normalizeDeepgram(raw, createdAt)
	default:
		return nil, &NormalizationError{Provider: provider, Reason: "unknown provider tag"}
	}
}

func normalizeAssemblyAI(raw json.RawMessage, createdAt time.Time) (*Canonical, error) {
	var resp assemblyAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &NormalizationError{Provider: "assemblyai", Reason: err.Error()}
	}

	c := &Canonical{
		Metadata: Metadata{
			RequestID:       resp.ID,
			CreatedAt:       createdAt,
			DurationSeconds: nonNegative(resp.AudioDuration / 1000),
			ChannelCount:    1,
			ModelTag:        "assemblyai",
		},
		Results: Results{
			PrimaryText: resp.Text,
			Utterances:  []Utterance{},
		},
	}

	// AssemblyAI emits discrete speaker-attributed segments natively; map
	// each 1:1, converting millisecond timestamps to seconds.
	for _, u := range resp.Utterances {
		c.Results.Utterances = append(c.Results.Utterances, Utterance{
			SpeakerLabel: u.Speaker,
			Text:         u.Text,
			StartSeconds: u.Start / 1000,
			EndSeconds:   u.End / 1000,
			Confidence:   u.Confidence,
		})
	}

	sortUtterances(c.Results.Utterances)
	return c, nil
}

func normalizeDeepgram(raw json.RawMessage, createdAt time.Time) (*Canonical, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &NormalizationError{Provider: "deepgram", Reason: err.Error()}
	}
	if resp.Results == nil {
		return nil, &NormalizationError{Provider: "deepgram", Reason: "missing results"}
	}

	created := createdAt
	if t, err := time.Parse(time.RFC3339, resp.Metadata.Created); err == nil {
		created = t
	}

	modelTag := "deepgram"
	if len(resp.Metadata.Models) > 0 {
		modelTag = resp.Metadata.Models[0]
	}

	channels := resp.Metadata.Channels
	if channels <= 0 {
		channels = 1
	}

	c := &Canonical{
		Metadata: Metadata{
			RequestID:       resp.Metadata.RequestID,
			CreatedAt:       created,
			DurationSeconds: nonNegative(resp.Metadata.Duration),
			ChannelCount:    channels,
			ModelTag:        modelTag,
		},
		Results: Results{Utterances: []Utterance{}},
	}

	var words []deepgramWord
	if len(resp.Results.Channels) > 0 && len(resp.Results.Channels[0].Alternatives) > 0 {
		alt := resp.Results.Channels[0].Alternatives[0]
		c.Results.PrimaryText = alt.Transcript
		words = alt.Words
	}

	switch {
	case len(resp.Results.Utterances) > 0:
		// Segment-level data exists: 1:1 mapping.
		for _, u := range resp.Results.Utterances {
			c.Results.Utterances = append(c.Results.Utterances, Utterance{
				SpeakerLabel: strconv.Itoa(u.Speaker),
				Text:         u.Transcript,
				StartSeconds: u.Start,
				EndSeconds:   u.End,
				Confidence:   u.Confidence,
			})
		}
	case hasSpeakerWords(words):
		// Fallback: coalesce consecutive same-speaker words into utterances.
		c.Results.Utterances = coalesceWords(words)
	}

	sortUtterances(c.Results.Utterances)
	return c, nil
}

func hasSpeakerWords(words []deepgramWord) bool {
	for _, w := range words {
		if w.Speaker != nil {
			return true
		}
	}
	return false
}

// coalesceWords groups word-level tokens into utterances; a new utterance
// starts exactly when the speaker tag changes.
func coalesceWords(words []deepgramWord) []Utterance {
	var utterances []Utterance
	var cur *Utterance
	var curSpeaker int
	var parts []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.Join(parts, " ")
		utterances = append(utterances, *cur)
		cur = nil
		parts = nil
	}

	for _, w := range words {
		speaker := 0
		if w.Speaker != nil {
			speaker = *w.Speaker
		}
		if cur == nil || speaker != curSpeaker {
			flush()
			cur = &Utterance{
				SpeakerLabel: strconv.Itoa(speaker),
				StartSeconds: w.Start,
			}
			curSpeaker = speaker
		}
		cur.EndSeconds = w.End
		parts = append(parts, wordText(w))
	}
	flush()

	return utterances
}

func wordText(w deepgramWord) string {
	if w.PunctuatedWord != "" {
		return w.PunctuatedWord
	}
	return w.Word
}

func sortUtterances(utterances []Utterance) {
	sort.SliceStable(utterances, func(i, j int) bool {
		return utterances[i].StartSeconds < utterances[j].StartSeconds
	})
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
