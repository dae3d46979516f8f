package audio

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Transcoder contract: every station track becomes an audio-only,
// fixed-bitrate, fixed-sample-rate stereo mp3 so all listeners decode
// identical loops. Nonzero ffmpeg exit means failure.
type FFmpeg struct {
	Bitrate    string // e.g. "128k"
	SampleRate string // e.g. "44100"
}

func (f FFmpeg) Transcode(input, output string) error {
	bitrate := f.Bitrate
	if bitrate == "" {
		bitrate = "128k"
	}
	sampleRate := f.SampleRate
	if sampleRate == "" {
		sampleRate = "44100"
	}

	cmd := exec.Command("ffmpeg", "-y", "-i", input,
		"-vn",           // No Video
		"-map", "0:a:0", // Audio Only
		"-map_metadata", "-1", // Strip tags
		"-ar", sampleRate,
		"-ac", "2",
		"-c:a", "libmp3lame", "-b:a", bitrate,
		output)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(out))
	}

	// A zero-length loop would make every listener's offset math
	// meaningless, so reject it here rather than after publishing.
	d, err := ProbeDuration(output)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("transcode produced an empty loop (%s)", output)
	}
	return nil
}

// ProbeDuration reads a file's duration in seconds via ffprobe. A
// truncated or corrupt stream returns an error status.
func ProbeDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe", "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

func IsSupportedFormat(filename string) bool {
	extensions := []string{
		".mp3", ".flac", ".wav", ".ogg", ".m4a", ".aac", ".wma", ".aiff", ".alac", ".opus",
	}
	lower := strings.ToLower(filename)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func IsSupportedArtwork(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
