package farmbrief

import (
	"bytes"
	"fmt"
	"os"
)

// Podcast audio segments come back from the TTS provider as individual
// MPEG streams. Players tolerate concatenated MPEG frames in a single
// file, so the mixer strips each segment's ID3v2 header (after the first)
// and appends the frames. The inter-segment pause is requested from the
// TTS provider itself via a break tag appended to each line, which avoids
// re-encoding entirely.

// segmentBreakTag asks the TTS provider to render a short pause at the
// end of a dialogue line.
const segmentBreakTag = ` <break time="0.7s" />`

// id3v2HeaderSize is the size of a fixed ID3v2 tag header.
const id3v2HeaderSize = 10

// stripID3v2 removes a leading ID3v2 tag from an MPEG stream, if present.
func stripID3v2(data []byte) []byte {
	if len(data) < id3v2HeaderSize || !bytes.HasPrefix(data, []byte("ID3")) {
		return data
	}
	// Syncsafe 28-bit tag size in bytes 6-9
	size := int(data[6]&0x7f)<<21 |
		int(data[7]&0x7f)<<14 |
		int(data[8]&0x7f)<<7 |
		int(data[9]&0x7f)
	total := id3v2HeaderSize + size
	if total >= len(data) {
		return data
	}
	return data[total:]
}

// concatMP3 joins MPEG audio segments into a single stream. The first
// segment keeps its ID3 header; subsequent segments contribute frames only.
func concatMP3(segments [][]byte) []byte {
	var out bytes.Buffer
	for i, seg := range segments {
		if i == 0 {
			out.Write(seg)
			continue
		}
		out.Write(stripID3v2(seg))
	}
	return out.Bytes()
}

// combineSegmentFiles reads the given segment files in order and writes
// the combined audio to outPath.
func combineSegmentFiles(paths []string, outPath string) error {
	segments := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("error reading segment %s: %w", p, err)
		}
		segments = append(segments, data)
	}
	if len(segments) == 0 {
		return fmt.Errorf("no audio segments to combine")
	}
	if err := os.WriteFile(outPath, concatMP3(segments), 0o644); err != nil {
		return fmt.Errorf("error writing combined audio: %w", err)
	}
	return nil
}

// removeFiles deletes the given paths, ignoring individual failures. Used
// by deferred temp-file cleanup on every podcast pipeline exit path.
func removeFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
