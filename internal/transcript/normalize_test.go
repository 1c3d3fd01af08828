package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testCreated = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeAssemblyAIUtterances(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "tr_123",
		"status": "completed",
		"text": "Hello there. General Kenobi.",
		"confidence": 0.93,
		"audio_duration": 4500,
		"utterances": [
			{"speaker": "A", "text": "Hello there.", "start": 100, "end": 1800, "confidence": 0.95},
			{"speaker": "B", "text": "General Kenobi.", "start": 2000, "end": 4400, "confidence": 0.91}
		]
	}`)

	c, err := Normalize("assemblyai", raw, testCreated)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if c.Metadata.RequestID != "tr_123" {
		t.Errorf("requestId = %q, want tr_123", c.Metadata.RequestID)
	}
	if c.Metadata.ModelTag != "assemblyai" {
		t.Errorf("modelTag = %q", c.Metadata.ModelTag)
	}
	if c.Metadata.DurationSeconds != 4.5 {
		t.Errorf("durationSeconds = %v, want 4.5", c.Metadata.DurationSeconds)
	}
	if c.Metadata.ChannelCount != 1 {
		t.Errorf("channelCount = %d, want 1", c.Metadata.ChannelCount)
	}
	if c.Results.PrimaryText != "Hello there. General Kenobi." {
		t.Errorf("primaryText = %q", c.Results.PrimaryText)
	}

	if len(c.Results.Utterances) != 2 {
		t.Fatalf("got %d utterances, want 2", len(c.Results.Utterances))
	}
	first := c.Results.Utterances[0]
	if first.SpeakerLabel != "A" || first.Text != "Hello there." {
		t.Errorf("unexpected first utterance: %+v", first)
	}
	// Millisecond timestamps must be converted to seconds.
	if first.StartSeconds != 0.1 || first.EndSeconds != 1.8 {
		t.Errorf("first utterance times = %v..%v, want 0.1..1.8", first.StartSeconds, first.EndSeconds)
	}
	if first.Confidence == nil || *first.Confidence != 0.95 {
		t.Errorf("first utterance confidence = %v, want 0.95", first.Confidence)
	}
}

func TestNormalizeDeepgramTextOnly(t *testing.T) {
	// A synchronous provider result with a best-guess string and no
	// speaker-attributed data of any kind.
	raw := json.RawMessage(`{
		"metadata": {"request_id": "dg_1", "duration": 2.0, "channels": 1, "models": ["nova-2"]},
		"results": {"channels": [{"alternatives": [{"transcript": "hello world", "confidence": 0.9}]}]}
	}`)

	c, err := Normalize("deepgram", raw, testCreated)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if c.Results.PrimaryText != "hello world" {
		t.Errorf("primaryText = %q, want hello world", c.Results.PrimaryText)
	}
	if len(c.Results.Utterances) != 0 {
		t.Errorf("got %d utterances, want 0", len(c.Results.Utterances))
	}
}

func TestNormalizeDeepgramNativeUtterances(t *testing.T) {
	raw := json.RawMessage(`{
		"metadata": {"request_id": "dg_2", "duration": 10.5, "channels": 2, "models": ["nova-2"]},
		"results": {
			"channels": [{"alternatives": [{"transcript": "full text here", "confidence": 0.88}]}],
			"utterances": [
				{"speaker": 1, "transcript": "second", "start": 5.0, "end": 9.0, "confidence": 0.8},
				{"speaker": 0, "transcript": "first", "start": 0.5, "end": 4.5, "confidence": 0.9}
			]
		}
	}`)

	c, err := Normalize("deepgram", raw, testCreated)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(c.Results.Utterances) != 2 {
		t.Fatalf("got %d utterances, want 2", len(c.Results.Utterances))
	}
	// Utterances must be time-ordered by start regardless of payload order.
	if c.Results.Utterances[0].Text != "first" || c.Results.Utterances[1].Text != "second" {
		t.Errorf("utterances not time-ordered: %+v", c.Results.Utterances)
	}
	if c.Results.Utterances[0].SpeakerLabel != "0" {
		t.Errorf("speakerLabel = %q, want 0", c.Results.Utterances[0].SpeakerLabel)
	}
	if c.Metadata.ChannelCount != 2 {
		t.Errorf("channelCount = %d, want 2", c.Metadata.ChannelCount)
	}
}

func TestNormalizeDeepgramWordFallback(t *testing.T) {
	// No utterance-level data: consecutive same-speaker words coalesce, a
	// new utterance starts exactly when the speaker tag changes.
	raw := json.RawMessage(`{
		"metadata": {"request_id": "dg_3", "duration": 3.0, "channels": 1},
		"results": {
			"channels": [{"alternatives": [{
				"transcript": "hi there bye",
				"words": [
					{"word": "hi", "speaker": 1, "start": 0.0, "end": 0.4},
					{"word": "there", "speaker": 1, "start": 0.5, "end": 0.9},
					{"word": "bye", "speaker": 2, "start": 1.2, "end": 1.5}
				]
			}]}]
		}
	}`)

	c, err := Normalize("deepgram", raw, testCreated)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(c.Results.Utterances) != 2 {
		t.Fatalf("got %d utterances, want 2: %+v", len(c.Results.Utterances), c.Results.Utterances)
	}

	first, second := c.Results.Utterances[0], c.Results.Utterances[1]
	if first.SpeakerLabel != "1" || first.Text != "hi there" {
		t.Errorf("first utterance = %+v, want speaker 1 %q", first, "hi there")
	}
	if first.StartSeconds != 0.0 || first.EndSeconds != 0.9 {
		t.Errorf("first utterance times = %v..%v", first.StartSeconds, first.EndSeconds)
	}
	if second.SpeakerLabel != "2" || second.Text != "bye" {
		t.Errorf("second utterance = %+v, want speaker 2 %q", second, "bye")
	}
	if first.Confidence != nil {
		t.Errorf("coalesced utterance confidence = %v, want nil", first.Confidence)
	}
}

func TestNormalizeDeepgramPunctuatedWords(t *testing.T) {
	raw := json.RawMessage(`{
		"metadata": {"duration": 1.0, "channels": 1},
		"results": {
			"channels": [{"alternatives": [{
				"transcript": "Hello, world.",
				"words": [
					{"word": "hello", "punctuated_word": "Hello,", "speaker": 0, "start": 0.0, "end": 0.3},
					{"word": "world", "punctuated_word": "world.", "speaker": 0, "start": 0.4, "end": 0.8}
				]
			}]}]
		}
	}`)

	c, err := Normalize("deepgram", raw, testCreated)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(c.Results.Utterances) != 1 {
		t.Fatalf("got %d utterances, want 1", len(c.Results.Utterances))
	}
	if c.Results.Utterances[0].Text != "Hello, world." {
		t.Errorf("text = %q, want punctuated form", c.Results.Utterances[0].Text)
	}
}

func TestNormalizeDeterminism(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "tr_d",
		"text": "same every time",
		"audio_duration": 1000,
		"utterances": [{"speaker": "A", "text": "same every time", "start": 0, "end": 1000, "confidence": 0.5}]
	}`)

	a, err := Normalize("assemblyai", raw, testCreated)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	b, err := Normalize("assemblyai", raw, testCreated)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	aJSON, _ := json.Marshal(a)
	bJSON, _ := json.Marshal(b)
	if !bytes.Equal(aJSON, bJSON) {
		t.Errorf("repeated normalization differs:\n%s\n%s", aJSON, bJSON)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		raw      string
	}{
		{"unknown provider", "whisper", `{}`},
		{"malformed assemblyai", "assemblyai", `{"utterances": "nope"`},
		{"deepgram missing results", "deepgram", `{"metadata": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.provider, json.RawMessage(tt.raw), testCreated)
			var normErr *NormalizationError
			if !errors.As(err, &normErr) {
				t.Fatalf("expected NormalizationError, got %v", err)
			}
		})
	}
}
