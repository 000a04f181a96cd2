package rebroadcast

import (
	"strconv"
)

const (
	manifestFile       = "stream.m3u8"
	segmentFilePattern = "segment_%05d.ts"
)

// EncoderOptions configures the transcoder output encodings.
type EncoderOptions struct {
	VideoCodec   string
	VideoPreset  string
	VideoBitrate string
	VideoCRF     int
	Framerate    int
	AudioCodec   string
	AudioBitrate string
	AudioSample  int
}

// HLSOptions configures the rolling segmented output.
type HLSOptions struct {
	SegmentDuration int
	PlaylistSize    int
}

// BuildArgs assembles the transcoder command line for n contributing peers.
// All paths are relative to the room output directory, which is the
// working directory of the subprocess.
func BuildArgs(enc EncoderOptions, hls HLSOptions, n, width, height int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-protocol_whitelist", "file,udp,rtp",
		"-fflags", "+genpts",
		"-i", descriptionFile,
		"-filter_complex", FilterGraph(n, width, height, framerate(enc)),
		"-map", "[vout]",
		"-map", "[aout]",
	}
	args = append(args, videoArgs(enc, hls)...)
	args = append(args, audioArgs(enc)...)
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(hls.SegmentDuration),
		"-hls_list_size", strconv.Itoa(hls.PlaylistSize),
		"-hls_flags", "delete_segments+independent_segments",
		"-hls_segment_filename", segmentFilePattern,
		manifestFile,
	)
	return args
}

func framerate(enc EncoderOptions) int {
	if enc.Framerate > 0 {
		return enc.Framerate
	}
	return 30
}

func videoArgs(enc EncoderOptions, hls HLSOptions) []string {
	codec := enc.VideoCodec
	if codec == "" {
		codec = "libx264"
	}
	preset := enc.VideoPreset
	if preset == "" {
		preset = "veryfast"
	}
	args := []string{
		"-c:v", codec,
		"-preset", preset,
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
	}
	if enc.VideoBitrate != "" {
		args = append(args, "-b:v", enc.VideoBitrate)
	} else if enc.VideoCRF > 0 {
		args = append(args, "-crf", strconv.Itoa(enc.VideoCRF))
	}

	// One keyframe per segment so every segment starts decodable.
	fps := framerate(enc)
	gop := fps * max(hls.SegmentDuration, 1)
	args = append(args,
		"-r", strconv.Itoa(fps),
		"-g", strconv.Itoa(gop),
		"-keyint_min", strconv.Itoa(gop),
		"-sc_threshold", "0",
	)
	return args
}

func audioArgs(enc EncoderOptions) []string {
	codec := enc.AudioCodec
	if codec == "" {
		codec = "aac"
	}
	bitrate := enc.AudioBitrate
	if bitrate == "" {
		bitrate = "128k"
	}
	sample := enc.AudioSample
	if sample == 0 {
		sample = 48000
	}
	return []string{
		"-c:a", codec,
		"-b:a", bitrate,
		"-ar", strconv.Itoa(sample),
		"-ac", "2",
	}
}
