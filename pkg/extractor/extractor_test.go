package extractor

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "mjpeg"},
    {"index": 1, "codec_type": "audio", "codec_name": "flac", "sample_rate": "44100", "bits_per_raw_sample": "24", "duration": "241.5"}
  ],
  "format": {"duration": "241.52", "bit_rate": "1411200", "format_name": "flac"}
}`

// fakeProbe installs a script that prints a fixed ffprobe document
func fakeProbe(t *testing.T, output string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub requires a unix shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\ncat <<'JSON'\n" + output + "\nJSON\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

// id3Frame builds an ID3v2.3 text frame with ISO-8859-1 encoding
func id3Frame(id, text string) []byte {
	payload := append([]byte{0}, []byte(text)...)
	frame := []byte(id)
	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(payload)))
	frame = append(frame, size...)
	frame = append(frame, 0, 0)
	return append(frame, payload...)
}

func writeID3File(t *testing.T, path string) {
	t.Helper()
	var frames []byte
	frames = append(frames, id3Frame("TIT2", "Bohemian Rhapsody")...)
	frames = append(frames, id3Frame("TPE1", "Queen")...)
	frames = append(frames, id3Frame("TALB", "A Night at the Opera")...)
	frames = append(frames, id3Frame("TRCK", "11/12")...)

	n := len(frames)
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(n >> 21 & 0x7f), byte(n >> 14 & 0x7f), byte(n >> 7 & 0x7f), byte(n & 0x7f)}

	data := append(header, frames...)
	data = append(data, make([]byte, 256)...)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestExtractWithoutProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01 Some Song.MP3")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0644))

	e := New("")
	e.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	assert.False(t, e.ProbeAvailable())

	rec, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, rec.Path)
	assert.Equal(t, "01 Some Song.MP3", rec.Filename)
	assert.Equal(t, int64(16), rec.Size)
	assert.Equal(t, "mp3", rec.Format)
	assert.False(t, rec.Lossless)
	assert.Nil(t, rec.Duration)
	assert.Nil(t, rec.Title)
	assert.False(t, rec.HasMetadata())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rec.ScannedAt)
}

func TestExtractReadsTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	writeID3File(t, path)

	rec, err := New("").Extract(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rec.Title)
	assert.Equal(t, "Bohemian Rhapsody", *rec.Title)
	require.NotNil(t, rec.Artist)
	assert.Equal(t, "Queen", *rec.Artist)
	require.NotNil(t, rec.Album)
	assert.Equal(t, "A Night at the Opera", *rec.Album)
	require.NotNil(t, rec.TrackNumber)
	assert.Equal(t, 11, *rec.TrackNumber)
	assert.Nil(t, rec.Year)
}

func TestExtractWithProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.flac")
	require.NoError(t, os.WriteFile(path, []byte("fLaC"), 0644))

	e := New(fakeProbe(t, probeJSON))
	require.True(t, e.ProbeAvailable())

	rec, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, rec.Lossless)
	require.NotNil(t, rec.Duration)
	assert.InDelta(t, 241.52, *rec.Duration, 0.001)
	require.NotNil(t, rec.Bitrate)
	assert.Equal(t, 1411, *rec.Bitrate)
	require.NotNil(t, rec.SampleRate)
	assert.Equal(t, 44100, *rec.SampleRate)
	require.NotNil(t, rec.BitDepth)
	assert.Equal(t, 24, *rec.BitDepth)
}

func TestExtractProbeFailureTolerated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	rec, err := New(fakeProbe(t, "not json")).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Nil(t, rec.Duration)
	assert.Nil(t, rec.Bitrate)
}

func TestExtractMissingBinaryDisablesProbe(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "no-such-ffprobe"))
	assert.False(t, e.ProbeAvailable())
}

func TestExtractUnreadable(t *testing.T) {
	dir := t.TempDir()
	_, err := New("").Extract(context.Background(), filepath.Join(dir, "missing.mp3"))
	assert.Error(t, err)

	_, err = New("").Extract(context.Background(), dir)
	assert.Error(t, err)
}

func TestProbeResultHelpers(t *testing.T) {
	tests := []struct {
		name       string
		result     ProbeResult
		duration   float64
		bitrate    int
		sampleRate int
		bitDepth   int
	}{
		{
			name: "stream values preferred",
			result: ProbeResult{
				Streams: []ProbeStream{{CodecType: "audio", BitRate: "320000", SampleRate: "48000", BitsPerSample: 16}},
				Format:  ProbeFormat{Duration: "200.0", BitRate: "330000"},
			},
			duration: 200, bitrate: 320, sampleRate: 48000, bitDepth: 16,
		},
		{
			name: "format fallback",
			result: ProbeResult{
				Streams: []ProbeStream{{CodecType: "audio", Duration: "180.5"}},
				Format:  ProbeFormat{BitRate: "192499"},
			},
			duration: 180.5, bitrate: 192,
		},
		{
			name:   "malformed numbers",
			result: ProbeResult{Format: ProbeFormat{Duration: "bad", BitRate: "-5"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.duration, tt.result.DurationSeconds())
			assert.Equal(t, tt.bitrate, tt.result.BitRateKbps())
			assert.Equal(t, tt.sampleRate, tt.result.SampleRate())
			assert.Equal(t, tt.bitDepth, tt.result.BitDepth())
		})
	}
}
