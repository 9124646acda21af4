package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type mediainfoDoc struct {
	Media struct {
		Track []map[string]any `json:"track"`
	} `json:"media"`
}

// extract pulls the relevant fields out of mediainfo JSON output.
// getFileSize is only consulted when the video track reports no bitrate and
// it has to be estimated from file size and duration.
func extract(raw []byte, file IncomingFile, getFileSize func() (int64, error)) (*Metadata, error) {
	var doc mediainfoDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("error parsing mediainfo JSON: %w", err)
	}
	if len(doc.Media.Track) == 0 {
		return nil, errors.New("no media tracks found")
	}

	var video map[string]any
	for _, t := range doc.Media.Track {
		if t["@type"] == "Video" {
			video = t
			break
		}
	}
	if video == nil {
		return nil, errors.New("no video track found")
	}

	fpsStr, ok := trackString(video, "FrameRate")
	if !ok {
		return nil, errors.New("fps not found")
	}
	fps, err := strconv.ParseFloat(fpsStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid fps: %q", fpsStr)
	}

	frameStr, ok := trackString(video, "FrameCount")
	if !ok {
		return nil, errors.New("FrameCount not found")
	}
	frames, err := strconv.Atoi(frameStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing frame count: %q", frameStr)
	}

	durStr, ok := trackString(video, "Duration")
	if !ok {
		return nil, errors.New("Duration not found")
	}
	duration, err := strconv.ParseFloat(durStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid duration: %q", durStr)
	}

	codec, ok := trackString(video, "Format")
	if !ok {
		return nil, errors.New("no codec found")
	}

	// Bitrate may be in "BitRate" or "BitRate_Nominal"; if in neither,
	// estimate it from file size and duration.
	var bitrate int
	if s, ok := trackString(video, "BitRate"); ok {
		bitrate, err = strconv.Atoi(s)
	} else if s, ok := trackString(video, "BitRate_Nominal"); ok {
		bitrate, err = strconv.Atoi(s)
	} else {
		size, sizeErr := getFileSize()
		if sizeErr != nil {
			return nil, sizeErr
		}
		if duration <= 0 {
			return nil, fmt.Errorf("invalid duration: %q", durStr)
		}
		bitrate = int(float64(size) * 8 / duration)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid bitrate: %w", err)
	}

	return &Metadata{
		SrcFile:     file.Path,
		UserID:      file.UserID,
		TotalFrames: frames,
		Duration:    duration,
		OrigCodec:   codec,
		FPS:         fps,
		Bitrate:     bitrate,
		RawAll:      string(raw),
	}, nil
}

func trackString(track map[string]any, key string) (string, bool) {
	s, ok := track[key].(string)
	return s, ok && s != ""
}
