package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SourceYouTube is the source kind stored on video rows resolved by YouTubeClient.
const SourceYouTube = "youtube"

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)

// ValidReference reports whether ref looks like a video id the client can look up.
func ValidReference(ref string) bool {
	return videoIDPattern.MatchString(ref)
}

// YouTubeOptions configures a YouTubeClient.
type YouTubeOptions struct {
	APIURL   string
	APIKey   string
	YTDLPBin string
	Timeout  time.Duration
	Log      zerolog.Logger
}

// YouTubeClient checks availability through the YouTube Data API and resolves
// audio streams with yt-dlp.
type YouTubeClient struct {
	apiURL string
	apiKey string
	ytdlp  string
	client *http.Client
	log    zerolog.Logger
}

// NewYouTubeClient creates a client. The API key is process-wide.
func NewYouTubeClient(opts YouTubeOptions) *YouTubeClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ytdlp := opts.YTDLPBin
	if ytdlp == "" {
		ytdlp = "yt-dlp"
	}
	return &YouTubeClient{
		apiURL: strings.TrimRight(opts.APIURL, "/"),
		apiKey: opts.APIKey,
		ytdlp:  ytdlp,
		client: &http.Client{Timeout: timeout},
		log:    opts.Log,
	}
}

type videoListResponse struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
}

// Exists queries the videos endpoint for ref.
func (c *YouTubeClient) Exists(ctx context.Context, ref string) (bool, error) {
	if !ValidReference(ref) {
		return false, nil
	}

	q := url.Values{}
	q.Set("part", "id")
	q.Set("id", ref)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("%w: create request: %v", ErrUpstreamUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("%w: read response: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: videos API status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var list videoListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	for _, item := range list.Items {
		if item.ID == ref {
			return true, nil
		}
	}
	return false, nil
}

// BestAudioStream runs yt-dlp in JSON mode and selects a stream with SelectBestAudio.
func (c *YouTubeClient) BestAudioStream(ctx context.Context, ref string) (Stream, error) {
	if !ValidReference(ref) {
		return Stream{}, fmt.Errorf("%w: invalid reference %q", ErrNoSuitableStream, ref)
	}

	args := []string{
		"-J",
		"--no-warnings",
		"--skip-download",
		"--no-playlist",
		"https://www.youtube.com/watch?v=" + ref,
	}
	cmd := exec.CommandContext(ctx, c.ytdlp, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return Stream{}, fmt.Errorf("%w: yt-dlp: %v: %s", ErrUpstreamUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	formats, durationMs, err := ParseYTDLPInfo(out)
	if err != nil {
		return Stream{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	best, err := SelectBestAudio(formats)
	if err != nil {
		return Stream{}, err
	}

	c.log.Debug().
		Str("video", ref).
		Float64("bitrate", best.Bitrate).
		Int("formats", len(formats)).
		Msg("audio stream selected")

	return Stream{
		URL:        best.URL,
		Bitrate:    best.Bitrate,
		SampleRate: best.SampleRate,
		DurationMs: durationMs,
	}, nil
}

type ytdlpInfo struct {
	Duration float64       `json:"duration"`
	Formats  []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	URL    string   `json:"url"`
	VCodec string   `json:"vcodec"`
	ACodec string   `json:"acodec"`
	ASR    *int     `json:"asr"`
	ABR    *float64 `json:"abr"`
	TBR    *float64 `json:"tbr"`
}

// ParseYTDLPInfo extracts formats and the duration in milliseconds from
// yt-dlp's single-video JSON dump.
func ParseYTDLPInfo(data []byte) ([]Format, int, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, 0, fmt.Errorf("decode yt-dlp output: %w", err)
	}

	formats := make([]Format, 0, len(info.Formats))
	for _, f := range info.Formats {
		format := Format{
			URL:       f.URL,
			AudioOnly: f.VCodec == "none" && f.ACodec != "" && f.ACodec != "none",
		}
		if f.ASR != nil {
			format.SampleRate = *f.ASR
		}
		switch {
		case f.ABR != nil:
			format.Bitrate = *f.ABR
		case f.TBR != nil:
			format.Bitrate = *f.TBR
		}
		formats = append(formats, format)
	}
	return formats, int(info.Duration * 1000), nil
}
