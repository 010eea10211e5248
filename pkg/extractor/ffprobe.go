package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult represents the parsed output from an ffprobe inspection
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes a single stream in the container
type ProbeStream struct {
	Index            int    `json:"index"`
	CodecName        string `json:"codec_name"`
	CodecType        string `json:"codec_type"`
	Duration         string `json:"duration"`
	BitRate          string `json:"bit_rate"`
	SampleRate       string `json:"sample_rate"`
	Channels         int    `json:"channels"`
	BitsPerSample    int    `json:"bits_per_sample"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
}

// ProbeFormat captures container-level metadata
type ProbeFormat struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Probe executes ffprobe against path and decodes the JSON response
func Probe(ctx context.Context, binary string, path string) (ProbeResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ProbeResult{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return ProbeResult{}, fmt.Errorf("ffprobe: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// AudioStream returns the first audio stream, or nil
func (r ProbeResult) AudioStream() *ProbeStream {
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, "audio") {
			return &r.Streams[i]
		}
	}
	return nil
}

// DurationSeconds returns the container duration, falling back to the audio
// stream. Zero when unavailable.
func (r ProbeResult) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if s := r.AudioStream(); s != nil {
		if d := parseFloat(s.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// BitRateKbps returns the audio bitrate in kbps, preferring the stream value
func (r ProbeResult) BitRateKbps() int {
	rate := 0.0
	if s := r.AudioStream(); s != nil {
		rate = parseFloat(s.BitRate)
	}
	if rate <= 0 {
		rate = parseFloat(r.Format.BitRate)
	}
	if rate <= 0 {
		return 0
	}
	return int(math.Round(rate / 1000))
}

// SampleRate returns the audio sample rate in Hz, or 0
func (r ProbeResult) SampleRate() int {
	if s := r.AudioStream(); s != nil {
		if rate := parseFloat(s.SampleRate); rate > 0 {
			return int(rate)
		}
	}
	return 0
}

// BitDepth returns the sample bit depth, or 0 for lossy codecs that do not carry one
func (r ProbeResult) BitDepth() int {
	s := r.AudioStream()
	if s == nil {
		return 0
	}
	if depth := parseFloat(s.BitsPerRawSample); depth > 0 {
		return int(depth)
	}
	return s.BitsPerSample
}

// parseFloat returns 0 for empty or malformed values
func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) {
		return 0
	}
	return parsed
}
