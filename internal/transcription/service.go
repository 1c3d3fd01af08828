package transcription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/podscribe/backend/internal/fetch"
	"github.com/podscribe/backend/internal/progress"
	"github.com/podscribe/backend/internal/store"
	"github.com/podscribe/backend/internal/transcript"
)

// Request describes one transcription invocation. Immutable once accepted.
type Request struct {
	AudioURL    string
	Title       string
	PubDate     string
	GUID        string
	Description string
	Provider    string
	FeedTitle   string
	FeedURL     string
	RSSURL      string
}

// Service orchestrates the transcription pipeline: download the audio with
// progress, dispatch to the selected provider, normalize the response and
// persist the canonical transcript, emitting progress events throughout.
type Service struct {
	providers map[string]Provider
	fetcher   *fetch.Fetcher
	store     *store.Store
	inflight  *inflightRegistry
}

func NewService(fetcher *fetch.Fetcher, st *store.Store) *Service {
	return &Service{
		providers: make(map[string]Provider),
		fetcher:   fetcher,
		store:     st,
		inflight:  newInflightRegistry(),
	}
}

// RegisterProvider adds a transcription backend, keyed by its tag.
func (s *Service) RegisterProvider(p Provider) {
	s.providers[p.Name()] = p
	log.Printf("[pipeline] registered %s provider", p.Name())
}

func (s *Service) providerNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one transcription request, streaming progress events to
// stream. If a run for the same audio source and provider is already in
// flight the caller attaches to it instead of starting redundant work;
// backend work is cancelled once every attached caller has gone away.
func (s *Service) Run(ctx context.Context, req Request, stream *progress.Stream) {
	// The provider is part of the dedup key: a caller naming a different
	// provider for the same audio must not receive another provider's result.
	key := req.Provider + ":" + store.EncodeKey(req.AudioURL)

	runCtx, cancel := context.WithCancel(context.Background())
	r, started := s.inflight.begin(key, cancel)
	if !started {
		cancel()
		log.Printf("[pipeline] attaching to in-flight transcription for %s", req.AudioURL)
		r.attach(ctx, stream)
		select {
		case <-r.done:
		case <-ctx.Done():
		}
		return
	}

	r.attach(ctx, stream)
	defer s.inflight.release(key, r)
	s.execute(runCtx, req, r)
}

func (s *Service) execute(ctx context.Context, req Request, r *run) {
	emit := func(status string, stage progress.Stage, ratio float64, message string) {
		ev := progress.Event{Status: status, Stage: string(stage), Message: message}
		if p, ok := progress.Value(stage, ratio); ok {
			ev.Progress = progress.Int(p)
		}
		r.emit(ev)
	}
	fail := func(err error) {
		log.Printf("[pipeline] transcription failed for %s: %v", req.AudioURL, err)
		r.emit(progress.Event{
			Status:  progress.StatusError,
			Message: "Transcription failed: " + err.Error(),
			Error:   classify(err),
		})
	}

	provider, ok := s.providers[req.Provider]
	if !ok {
		fail(fmt.Errorf("unknown provider: %s (available: %v)", req.Provider, s.providerNames()))
		return
	}

	total, err := s.fetcher.ProbeSize(ctx, req.AudioURL)
	if err != nil {
		fail(err)
		return
	}

	emit(progress.StatusDownloading, progress.StageDownload, 0, "Starting audio download...")

	lastPct := -1
	scratchPath, err := s.fetcher.Download(ctx, req.AudioURL, total, func(ratio float64) {
		pct := int(math.Round(math.Min(1, ratio) * 100))
		if pct == lastPct {
			return
		}
		lastPct = pct
		emit(progress.StatusDownloading, progress.StageDownload, ratio, fmt.Sprintf("Downloading audio: %d%%", pct))
	})
	if scratchPath != "" {
		// Scratch files are best-effort deleted regardless of outcome.
		defer func() {
			if err := os.Remove(scratchPath); err != nil {
				log.Printf("[pipeline] failed to remove scratch file %s: %v", scratchPath, err)
			}
		}()
	}
	if err != nil {
		fail(err)
		return
	}

	emit(progress.StatusDownloading, progress.StageDownload, 1, "Audio download complete")
	emit(progress.StatusProcessing, progress.StageUpload, 0, "Audio downloaded, preparing for transcription...")

	audio, err := os.ReadFile(scratchPath)
	if err != nil {
		fail(fmt.Errorf("read downloaded audio: %w", err))
		return
	}

	emit(progress.StatusProcessing, progress.StageUpload, 0.2,
		fmt.Sprintf("Audio file prepared (%.2f MB), preparing upload...", float64(len(audio))/1024/1024))

	raw, err := provider.Transcribe(ctx, audio, func(stage progress.Stage, ratio float64, message string) {
		emit(progress.StatusProcessing, stage, ratio, message)
	})
	if err != nil {
		fail(err)
		return
	}

	emit(progress.StatusProcessing, progress.StageSaving, 0.5, "Formatting transcript and saving...")

	canonical, err := transcript.Normalize(provider.Name(), raw, time.Now().UTC())
	if err != nil {
		fail(err)
		return
	}
	if canonical.Metadata.RequestID == "" {
		canonical.Metadata.RequestID = uuid.New().String()
	}

	rec := &store.Record{
		SavedAt:     time.Now().UTC(),
		AudioURL:    req.AudioURL,
		Title:       req.Title,
		PubDate:     req.PubDate,
		GUID:        req.GUID,
		Description: req.Description,
		FeedTitle:   req.FeedTitle,
		FeedURL:     req.FeedURL,
		RSSURL:      req.RSSURL,
		Provider:    provider.Name(),
		Transcript:  canonical,
	}
	if err := s.store.Save(rec); err != nil {
		fail(err)
		return
	}

	r.emit(progress.Event{
		Status:     progress.StatusComplete,
		Stage:      "complete",
		Message:    "Transcription complete!",
		Progress:   progress.Int(100),
		Transcript: canonical,
	})
	log.Printf("[pipeline] transcription complete: %s (provider=%s)", req.AudioURL, provider.Name())
}

// classify maps a pipeline failure onto the error taxonomy reported to
// clients, attaching the upstream provider payload when one exists.
func classify(err error) *progress.ErrorDetail {
	detail := &progress.ErrorDetail{Message: err.Error()}

	var downloadErr *fetch.DownloadError
	var providerErr *ProviderError
	var timeoutErr *TimeoutError
	var normErr *transcript.NormalizationError
	var storageErr *store.StorageError

	switch {
	case errors.As(err, &downloadErr):
		detail.Type = "DownloadError"
	case errors.As(err, &providerErr):
		switch providerErr.Op {
		case OpUpload:
			detail.Type = "ProviderUploadError"
		case OpSubmit:
			detail.Type = "ProviderSubmitError"
		case OpPoll:
			detail.Type = "ProviderPollError"
		case OpReported:
			detail.Type = "ProviderReportedError"
		}
		detail.Response = providerErr.Response
	case errors.As(err, &timeoutErr):
		detail.Type = "TimeoutError"
	case errors.As(err, &normErr):
		detail.Type = "NormalizationError"
	case errors.As(err, &storageErr):
		detail.Type = "StorageError"
	}

	return detail
}
