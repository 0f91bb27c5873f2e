// Package ffprobe wraps the ffprobe CLI to extract stream and container
// metadata. The encoding validator uses it to confirm a transcoded video has a
// positive duration and a video stream, and the strategy uses it to spot
// sources that are already AV1.
package ffprobe
