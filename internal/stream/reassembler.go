// Package stream relays the upstream agent's SSE event stream to web
// clients, reassembling records out of arbitrarily chunked reads and
// optionally routing them through the enrichment pipeline.
package stream

import "strings"

// recordBoundary separates SSE records on the wire.
const recordBoundary = "\n\n"

// Reassembler accumulates raw bytes from the upstream socket and cuts
// them into complete SSE records. One instance belongs to exactly one
// stream session; it is not safe for concurrent use and is thrown away
// when the session ends. Bytes after the last boundary stay buffered
// until more data arrives — they are never flushed as a partial record.
type Reassembler struct {
	rem string
}

// Push appends a chunk and returns every record completed by it, in
// order. Invalid UTF-8 sequences are replaced rather than failing the
// stream.
func (r *Reassembler) Push(chunk []byte) []string {
	r.rem += strings.ToValidUTF8(string(chunk), "�")

	var frames []string
	for {
		i := strings.Index(r.rem, recordBoundary)
		if i < 0 {
			return frames
		}
		frames = append(frames, r.rem[:i])
		r.rem = r.rem[i+len(recordBoundary):]
	}
}
