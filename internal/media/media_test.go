package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestSelectBestAudio(t *testing.T) {
	tests := []struct {
		name    string
		formats []Format
		wantURL string
		wantErr bool
	}{
		{
			name: "lowest_bitrate_at_48k",
			formats: []Format{
				{URL: "a", SampleRate: 44100, Bitrate: 128, AudioOnly: true},
				{URL: "b", SampleRate: 48000, Bitrate: 160, AudioOnly: true},
				{URL: "c", SampleRate: 48000, Bitrate: 96, AudioOnly: true},
			},
			wantURL: "c",
		},
		{
			name: "video_formats_ignored",
			formats: []Format{
				{URL: "muxed", SampleRate: 48000, Bitrate: 32, AudioOnly: false},
				{URL: "audio", SampleRate: 48000, Bitrate: 64, AudioOnly: true},
			},
			wantURL: "audio",
		},
		{
			name: "tie_keeps_first",
			formats: []Format{
				{URL: "first", SampleRate: 48000, Bitrate: 64, AudioOnly: true},
				{URL: "second", SampleRate: 48000, Bitrate: 64, AudioOnly: true},
			},
			wantURL: "first",
		},
		{
			name: "no_48k_stream",
			formats: []Format{
				{URL: "a", SampleRate: 44100, Bitrate: 128, AudioOnly: true},
			},
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectBestAudio(tt.formats)
			if tt.wantErr {
				if !errors.Is(err, ErrNoSuitableStream) {
					t.Fatalf("err = %v, want ErrNoSuitableStream", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectBestAudio: %v", err)
			}
			if got.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", got.URL, tt.wantURL)
			}
		})
	}
}

func TestParseYTDLPInfo(t *testing.T) {
	raw := []byte(`{
		"id": "abc123",
		"duration": 212.5,
		"formats": [
			{"format_id": "139", "url": "https://x/139", "vcodec": "none", "acodec": "mp4a.40.5", "asr": 22050, "abr": 48.7},
			{"format_id": "249", "url": "https://x/249", "vcodec": "none", "acodec": "opus", "asr": 48000, "abr": 50.2},
			{"format_id": "251", "url": "https://x/251", "vcodec": "none", "acodec": "opus", "asr": 48000, "abr": 130.1},
			{"format_id": "18",  "url": "https://x/18",  "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "asr": 48000, "tbr": 30.0},
			{"format_id": "sb0", "url": "https://x/sb0", "vcodec": "none", "acodec": "none", "asr": null}
		]
	}`)

	formats, durationMs, err := ParseYTDLPInfo(raw)
	if err != nil {
		t.Fatalf("ParseYTDLPInfo: %v", err)
	}
	if durationMs != 212500 {
		t.Errorf("durationMs = %d, want 212500", durationMs)
	}
	if len(formats) != 5 {
		t.Fatalf("len(formats) = %d, want 5", len(formats))
	}
	if formats[3].AudioOnly {
		t.Error("muxed format marked audio-only")
	}
	if formats[4].AudioOnly {
		t.Error("storyboard format marked audio-only")
	}
	if formats[3].Bitrate != 30.0 {
		t.Errorf("tbr fallback bitrate = %v, want 30", formats[3].Bitrate)
	}

	best, err := SelectBestAudio(formats)
	if err != nil {
		t.Fatalf("SelectBestAudio: %v", err)
	}
	if best.URL != "https://x/249" {
		t.Errorf("best URL = %q, want https://x/249", best.URL)
	}

	if _, _, err := ParseYTDLPInfo([]byte("not json")); err == nil {
		t.Error("expected error for malformed output")
	}
}

func TestYouTubeClientExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Query().Get("id") {
		case "abc123":
			w.Write([]byte(`{"items":[{"id":"abc123"}]}`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`{"items":[]}`))
		}
	}))
	defer srv.Close()

	c := NewYouTubeClient(YouTubeOptions{APIURL: srv.URL + "/", APIKey: "secret", Log: zerolog.Nop()})

	t.Run("found", func(t *testing.T) {
		ok, err := c.Exists(context.Background(), "abc123")
		if err != nil || !ok {
			t.Errorf("Exists = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		ok, err := c.Exists(context.Background(), "missing1")
		if err != nil || ok {
			t.Errorf("Exists = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("invalid_reference_short_circuits", func(t *testing.T) {
		ok, err := c.Exists(context.Background(), "../etc")
		if err != nil || ok {
			t.Errorf("Exists = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("upstream_error", func(t *testing.T) {
		ok, err := c.Exists(context.Background(), "broken")
		if ok || !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("Exists = %v, %v; want false, ErrUpstreamUnavailable", ok, err)
		}
	})

	t.Run("bad_key", func(t *testing.T) {
		bad := NewYouTubeClient(YouTubeOptions{APIURL: srv.URL, APIKey: "wrong", Log: zerolog.Nop()})
		if _, err := bad.Exists(context.Background(), "abc123"); !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
		}
	})
}
