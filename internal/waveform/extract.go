package waveform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Fixed render resolution for every artifact.
const (
	PixelsPerSecond = 400
	Bits            = 8
)

// Extractor turns a remote audio stream into a waveform artifact at dest.
type Extractor interface {
	Extract(ctx context.Context, streamURL, dest string) error
}

// ProcessExtractor decodes with ffmpeg and renders with audiowaveform.
// ffmpeg's stdout is connected to audiowaveform's stdin so the decoded
// audio is never held in memory or on disk.
type ProcessExtractor struct {
	FFmpegBin        string
	AudiowaveformBin string
}

func decodeArgs(streamURL string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", streamURL,
		"-vn", "-ac", "1",
		"-f", "wav", "-",
	}
}

func renderArgs(dest string) []string {
	return []string{
		"--input-format", "wav",
		"-i", "-",
		"-o", dest,
		"-b", strconv.Itoa(Bits),
		"--pixels-per-second", strconv.Itoa(PixelsPerSecond),
	}
}

// Extract runs both processes to completion. If either fails the other is
// killed, and both are always reaped before Extract returns.
func (x ProcessExtractor) Extract(ctx context.Context, streamURL, dest string) error {
	ffmpeg := x.FFmpegBin
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	audiowaveform := x.AudiowaveformBin
	if audiowaveform == "" {
		audiowaveform = "audiowaveform"
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: pipe: %v", ErrTranscode, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var decodeStderr, renderStderr bytes.Buffer
	decode := exec.CommandContext(gctx, ffmpeg, decodeArgs(streamURL)...)
	decode.Stdout = pw
	decode.Stderr = &decodeStderr

	render := exec.CommandContext(gctx, audiowaveform, renderArgs(dest)...)
	render.Stdin = pr
	render.Stderr = &renderStderr

	if err := decode.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("%w: start ffmpeg: %v", ErrTranscode, err)
	}
	// The child holds its own copy of the write end; ours must be closed so
	// the renderer sees EOF when ffmpeg exits.
	pw.Close()

	if err := render.Start(); err != nil {
		pr.Close()
		decode.Process.Kill()
		decode.Wait()
		return fmt.Errorf("%w: start audiowaveform: %v", ErrTranscode, err)
	}
	pr.Close()

	g.Go(func() error {
		if err := decode.Wait(); err != nil {
			return fmt.Errorf("ffmpeg: %v: %s", err, stderrTail(&decodeStderr))
		}
		return nil
	})
	g.Go(func() error {
		if err := render.Wait(); err != nil {
			return fmt.Errorf("audiowaveform: %v: %s", err, stderrTail(&renderStderr))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v (%v)", ErrTranscode, err, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrTranscode, err)
	}
	return nil
}

func stderrTail(b *bytes.Buffer) string {
	s := strings.TrimSpace(b.String())
	if len(s) > 512 {
		s = "..." + s[len(s)-512:]
	}
	return s
}
