// Package videomux implements C3 (muxing a bitmap sequence into a
// frame-stable MP4) and the frame-extraction half of C5. Both operations
// shell out to a fresh ffmpeg subprocess per call, in the idiom of the
// teacher's localmedia.Tools: exec.CommandContext, CombinedOutput, and a
// scoped scratch directory that is always removed on exit.
package videomux

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qrvid/corpus/internal/platform/config"
	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/ctxutil"
	"github.com/qrvid/corpus/internal/platform/logger"
)

// Muxer wraps the external codec invocations. It never keeps a long-lived
// subprocess: every Mux/ExtractFrame call spawns and reaps its own ffmpeg.
type Muxer struct {
	log           *logger.Logger
	encoderBinary string
	probeBinary   string
	fps           float64
	width         int
	height        int
	scratchRoot   string
	timeout       time.Duration
}

func New(log *logger.Logger, cfg config.Config) *Muxer {
	return &Muxer{
		log:           log.With("component", "videomux"),
		encoderBinary: cfg.EncoderBinary,
		probeBinary:   cfg.ProbeBinary,
		fps:           cfg.VideoFPS,
		width:         cfg.VideoWidth,
		height:        cfg.VideoHeight,
		scratchRoot:   filepath.Join(os.TempDir(), "qrvid-corpus"),
		timeout:       10 * time.Minute,
	}
}

// AssertReady fails fast with corerr.KindEncoderNotFound if the codec
// binaries are missing from PATH, mirroring localmedia.Tools.AssertReady.
func (m *Muxer) AssertReady() error {
	if _, err := exec.LookPath(m.encoderBinary); err != nil {
		return corerr.EncoderNotFound("videomux", m.encoderBinary, err)
	}
	if _, err := exec.LookPath(m.probeBinary); err != nil {
		return corerr.EncoderNotFound("videomux", m.probeBinary, err)
	}
	return nil
}

// MuxFrames writes bitmaps to a fresh, uniquely named scratch directory
// with zero-padded sortable filenames, invokes the encoder to assemble
// them into outputPath at fixed fps / yuv420p / forced resolution, and
// removes the scratch directory on every exit path. Frame N in bitmaps
// becomes presentation frame N in outputPath — no filter in the pipeline
// is permitted to drop, duplicate, or reorder frames.
func (m *Muxer) MuxFrames(ctx context.Context, bitmaps [][]byte, outputPath string) (err error) {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(); err != nil {
		return err
	}

	scratchDir := filepath.Join(m.scratchRoot, fmt.Sprintf("mux-%s", uuid.NewString()))
	if mkErr := os.MkdirAll(scratchDir, 0o755); mkErr != nil {
		return corerr.IO("videomux", "create scratch directory", mkErr)
	}
	defer func() {
		_ = os.RemoveAll(scratchDir)
	}()

	if len(bitmaps) == 0 {
		return m.muxEmpty(ctx, outputPath)
	}

	width := digitWidth(len(bitmaps) - 1)
	for i, bmp := range bitmaps {
		name := fmt.Sprintf("frame_%0*d.png", width, i)
		if writeErr := os.WriteFile(filepath.Join(scratchDir, name), bmp, 0o644); writeErr != nil {
			return corerr.IO("videomux", "write scratch frame", writeErr)
		}
		if ctx.Err() != nil {
			return corerr.IO("videomux", "mux cancelled", ctx.Err())
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return corerr.IO("videomux", "create output directory", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	pattern := filepath.Join(scratchDir, fmt.Sprintf("frame_%%0%dd.png", width))
	args := []string{
		"-y",
		"-framerate", formatFPS(m.fps),
		"-i", pattern,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=yuv420p", m.width, m.height, m.width, m.height),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outputPath,
	}

	cmd := exec.CommandContext(runCtx, m.encoderBinary, args...)
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		_ = os.Remove(outputPath)
		return corerr.EncoderFailed("videomux", fmt.Sprintf("ffmpeg mux failed: %s", string(out)), runErr)
	}

	if _, statErr := os.Stat(outputPath); statErr != nil {
		return corerr.IO("videomux", "mux produced no output", statErr)
	}
	return nil
}

// muxEmpty produces a zero-frame, but otherwise valid, MP4 container for
// empty input text, per spec.md §4.1's empty-input policy.
func (m *Muxer) muxEmpty(ctx context.Context, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return corerr.IO("videomux", "create output directory", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=white:s=%dx%d:r=%s", m.width, m.height, formatFPS(m.fps)),
		"-frames:v", "0",
		"-pix_fmt", "yuv420p",
		outputPath,
	}
	cmd := exec.CommandContext(runCtx, m.encoderBinary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outputPath)
		return corerr.EncoderFailed("videomux", fmt.Sprintf("ffmpeg empty mux failed: %s", string(out)), err)
	}
	return nil
}

// ExtractFrame seeks to frameNumber (0-indexed, presentation order) in
// videoPath and returns exactly one PNG-encoded frame. Seeking is by
// timestamp — frameNumber/fps with a half-frame-period bias so the seek
// lands inside the target frame rather than exactly on its boundary
// (spec.md §9's option (b); SPEC_FULL.md §5 decision 4). fps must be the
// value the artifact was muxed with, not assumed.
func (m *Muxer) ExtractFrame(ctx context.Context, videoPath string, frameNumber int, fps float64) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	if _, err := os.Stat(videoPath); err != nil {
		return nil, corerr.VideoNotFound("videomux", videoPath)
	}
	if err := m.AssertReady(); err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = m.fps
	}

	timestamp := (float64(frameNumber) + 0.5) / fps

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(timestamp, 'f', 6, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	}
	cmd := exec.CommandContext(runCtx, m.encoderBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, corerr.EncoderFailed("videomux", fmt.Sprintf("ffmpeg extract failed: %s", stderr.String()), err)
	}
	if stdout.Len() == 0 {
		return nil, corerr.EncoderFailed("videomux", "ffmpeg extract produced no frame", nil)
	}
	return stdout.Bytes(), nil
}

// ProbeResult is the subset of ffprobe's output Stats needs.
type ProbeResult struct {
	DurationSeconds float64
	TotalFrames     int
	VideoSizeBytes  int64
}

// Probe inspects videoPath with ffprobe for the metrics Stats (spec.md
// §3) needs: duration, frame count, and file size.
func (m *Muxer) Probe(ctx context.Context, videoPath string) (ProbeResult, error) {
	ctx = ctxutil.Default(ctx)
	info, statErr := os.Stat(videoPath)
	if statErr != nil {
		return ProbeResult{}, corerr.VideoNotFound("videomux", videoPath)
	}
	if err := m.AssertReady(); err != nil {
		return ProbeResult{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=nb_read_frames,duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}
	cmd := exec.CommandContext(runCtx, m.probeBinary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeResult{}, corerr.EncoderFailed("videomux", fmt.Sprintf("ffprobe failed: %s", string(out)), err)
	}

	lines := strings.Fields(strings.TrimSpace(string(out)))
	result := ProbeResult{VideoSizeBytes: info.Size()}
	if len(lines) >= 1 {
		if d, parseErr := strconv.ParseFloat(lines[0], 64); parseErr == nil {
			result.DurationSeconds = d
		}
	}
	if len(lines) >= 2 {
		if n, parseErr := strconv.Atoi(lines[1]); parseErr == nil {
			result.TotalFrames = n
		}
	}
	return result, nil
}

func digitWidth(maxIndex int) int {
	if maxIndex < 1 {
		return 5
	}
	w := 1
	for maxIndex >= 10 {
		maxIndex /= 10
		w++
	}
	if w < 5 {
		return 5
	}
	return w
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
