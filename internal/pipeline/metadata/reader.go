// Package metadata extracts technical metadata from uploaded media files by
// shelling out to mediainfo, with a bounded worker pool in front of it.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/azazel75/clapshot/internal/metrics"
)

// IncomingFile is one uploaded media file waiting for analysis.
type IncomingFile struct {
	Path   string
	UserID string
}

// Metadata is the technical summary of one video file.
type Metadata struct {
	SrcFile     string
	UserID      string
	TotalFrames int
	Duration    float64
	OrigCodec   string
	FPS         float64
	Bitrate     int
	RawAll      string // complete mediainfo JSON, stored alongside the parsed fields
}

// FPSString formats the frame rate the way it is stored and shown,
// e.g. 23.976 -> "23.976", 30 -> "30.000".
func (m *Metadata) FPSString() string {
	return strconv.FormatFloat(m.FPS, 'f', 3, 64)
}

// DetailedError carries a user-presentable failure for one input file.
type DetailedError struct {
	Msg     string
	Details string
	SrcFile string
	UserID  string
}

func (e *DetailedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Msg, e.Details)
}

// Result pairs exactly one outcome with the input that produced it. Exactly
// one of Metadata and Err is set.
type Result struct {
	Metadata *Metadata
	Err      *DetailedError
}

// Reader runs mediainfo and parses its JSON output.
type Reader struct {
	bin string
}

// NewReader creates a reader using the given mediainfo binary, or "mediainfo"
// from PATH when empty.
func NewReader(mediainfoBin string) *Reader {
	if mediainfoBin == "" {
		mediainfoBin = "mediainfo"
	}
	return &Reader{bin: mediainfoBin}
}

// Run consumes incoming files until in closes, analyzing up to nWorkers files
// concurrently and emitting exactly one result per input on out. The stage
// aborts when a result can no longer be handed off (ctx cancelled while out
// is blocked); continuing past that point would drop results silently.
func (r *Reader) Run(ctx context.Context, in <-chan IncomingFile, out chan<- Result, nWorkers int) {
	slog.Info("Metadata reader starting", "workers", nWorkers)

	var wg sync.WaitGroup
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range in {
				res := r.process(ctx, file)
				select {
				case out <- res:
				case <-ctx.Done():
					slog.Error("Metadata result handoff failed, aborting worker", "file", file.Path)
					return
				}
			}
		}()
	}
	wg.Wait()

	slog.Info("Metadata reader exiting")
}

func (r *Reader) process(ctx context.Context, file IncomingFile) Result {
	start := time.Now()
	md, err := r.ReadFile(ctx, file)
	metrics.MetadataJobDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MetadataFailures.Inc()
		slog.Warn("Metadata read failed", "file", file.Path, "user_id", file.UserID, "error", err)
		return Result{Err: &DetailedError{
			Msg:     "Metadata read failed",
			Details: err.Error(),
			SrcFile: file.Path,
			UserID:  file.UserID,
		}}
	}
	return Result{Metadata: md}
}

// ReadFile runs mediainfo on one file and extracts its metadata.
func (r *Reader) ReadFile(ctx context.Context, file IncomingFile) (*Metadata, error) {
	raw, err := r.runMediainfo(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	return extract(raw, file, func() (int64, error) {
		fi, err := os.Stat(file.Path)
		if err != nil {
			return 0, fmt.Errorf("failed to get file size: %w", err)
		}
		return fi.Size(), nil
	})
}

func (r *Reader) runMediainfo(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.bin, "--Output=JSON", path)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("mediainfo exited with error: %s", exitErr.Stderr)
		}
		return nil, fmt.Errorf("failed to execute mediainfo: %w", err)
	}
	return out, nil
}
