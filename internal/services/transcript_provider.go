package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
)

const (
	ProviderTranscriptIO = "transcript-io"
	ProviderYouTube      = "youtube"

	maxTranscriptBody = 20 << 20
)

// TranscriptProvider fetches the raw caption payload for one video and
// language. Bodies are normalized by NormalizeTranscriptBody.
type TranscriptProvider interface {
	Name() string
	HasCredential() bool
	Fetch(ctx context.Context, videoID, lang string) ([]byte, error)
}

// NewTranscriptProvider picks the provider named by kind.
func NewTranscriptProvider(kind, baseURL, apiKey string, timeout time.Duration) TranscriptProvider {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ProviderYouTube:
		return NewYouTubeDirectProvider()
	default:
		return NewTranscriptIOProvider(baseURL, apiKey, &http.Client{Timeout: timeout})
	}
}

type transcriptIOProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewTranscriptIOProvider talks to the youtube-transcript.io compatible API
// rooted at baseURL.
func NewTranscriptIOProvider(baseURL, apiKey string, client *http.Client) TranscriptProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &transcriptIOProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (p *transcriptIOProvider) Name() string { return ProviderTranscriptIO }

func (p *transcriptIOProvider) HasCredential() bool { return p.apiKey != "" }

func (p *transcriptIOProvider) Fetch(ctx context.Context, videoID, lang string) ([]byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"ids":  []string{videoID},
		"lang": lang,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcripts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBody))
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &ProviderError{Provider: p.Name(), Status: resp.StatusCode, Err: errors.New(snippet)}
	}
	return body, nil
}

// youtubeDirectProvider reads captions straight from YouTube and re-encodes
// them as a {"transcript": [...]} body.
type youtubeDirectProvider struct {
	api *ytapi.YouTubeTranscriptApi
}

func NewYouTubeDirectProvider() TranscriptProvider {
	return &youtubeDirectProvider{api: ytapi.NewYouTubeTranscriptApi()}
}

func (p *youtubeDirectProvider) Name() string { return ProviderYouTube }

// HasCredential is always true: public captions need no key.
func (p *youtubeDirectProvider) HasCredential() bool { return true }

func (p *youtubeDirectProvider) Fetch(ctx context.Context, videoID, lang string) ([]byte, error) {
	type outcome struct {
		entries []ytapi.TranscriptEntry
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		transcript, err := p.api.GetTranscript(videoID, []string{lang})
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{entries: transcript.Entries}
	}()

	select {
	case <-ctx.Done():
		return nil, &ProviderError{Provider: p.Name(), Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return nil, &ProviderError{Provider: p.Name(), Err: out.err}
		}
		return encodeCaptionEntries(videoID, out.entries)
	}
}

// encodeCaptionEntries writes entries in the {"transcript": [...]} shape the
// normalizer reads, timing included.
func encodeCaptionEntries(videoID string, entries []ytapi.TranscriptEntry) ([]byte, error) {
	if entries == nil {
		entries = []ytapi.TranscriptEntry{}
	}
	return json.Marshal(map[string]interface{}{
		"id":         videoID,
		"transcript": entries,
	})
}
