//go:build ignore

// Package main generates a synthetic channel event stream for load testing
// ingestion and search.
// Usage: go run scripts/generate-events.go -events 100000 -output testdata/events.jsonl
//
// The stream mixes new posts, reposts of earlier files into other
// channels, caption edits, removals and a small share of malformed lines.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numEvents = flag.Int("events", 10000, "Number of events to generate")
	channels  = flag.Int("channels", 20, "Number of channels")
	outputOpt = flag.String("output", "-", "Output file, - for stdout")
	seed      = flag.Uint64("seed", 42, "Random seed for reproducibility")
)

var (
	series = []string{
		"Solo Leveling", "One Piece", "Naruto", "Attack on Titan", "Bleach",
		"Jujutsu Kaisen", "Chainsaw Man", "Vinland Saga", "Berserk", "Monster",
		"Dandadan", "Frieren", "Spy x Family", "Blue Lock", "Kaiju No. 8",
	}
	units   = []string{"ch", "chapter", "ep", "episode", "vol", "OVA"}
	quality = []string{"", "720p", "1080p", "HQ", "raw", "eng sub", "[batch]"}
	kinds   = []string{"file", "file", "video", "video", "image", "audio", "text"}
)

type event struct {
	ChannelID string `json:"channel_id"`
	ItemID    int    `json:"item_id"`
	Caption   string `json:"caption,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	MediaKind string `json:"media_kind,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
}

type posted struct {
	channel string
	item    int
	fileID  string
	kind    string
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewPCG(*seed, *seed))

	out := os.Stdout
	if *outputOpt != "-" {
		if err := os.MkdirAll(filepath.Dir(*outputOpt), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
			os.Exit(1)
		}
		f, err := os.Create(*outputOpt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()
	enc := json.NewEncoder(w)

	nextItem := make(map[string]int)
	var history []posted
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < *numEvents; i++ {
		channel := fmt.Sprintf("-100%04d", rng.IntN(*channels))
		at := start.Add(time.Duration(i) * 37 * time.Second)
		roll := rng.IntN(100)

		switch {
		case roll < 2:
			// Malformed line: the ingester counts and skips it.
			fmt.Fprintln(w, `{"channel_id":`+channel+`,"item_id":`)
			continue
		case roll < 7 && len(history) > 0:
			p := history[rng.IntN(len(history))]
			_ = enc.Encode(event{ChannelID: p.channel, ItemID: p.item, Removed: true})
			continue
		case roll < 12 && len(history) > 0:
			p := history[rng.IntN(len(history))]
			_ = enc.Encode(event{ChannelID: p.channel, ItemID: p.item, Caption: caption(rng) + " (edited)",
				FileID: p.fileID, MediaKind: p.kind, Timestamp: at.Unix()})
			continue
		}

		nextItem[channel]++
		ev := event{
			ChannelID: channel,
			ItemID:    nextItem[channel],
			Caption:   caption(rng),
			MediaKind: kinds[rng.IntN(len(kinds))],
			Timestamp: at.Unix(),
		}
		if ev.MediaKind != "text" {
			if roll < 30 && len(history) > 0 {
				// Repost of an earlier file into this channel.
				p := history[rng.IntN(len(history))]
				ev.FileID, ev.MediaKind = p.fileID, p.kind
			} else {
				ev.FileID = fmt.Sprintf("F%08x", rng.Uint32())
			}
			ev.SizeBytes = rng.Int64N(2 << 30)
		}
		_ = enc.Encode(ev)
		history = append(history, posted{channel: channel, item: ev.ItemID, fileID: ev.FileID, kind: ev.MediaKind})
	}

	fmt.Fprintf(os.Stderr, "Generated %d events across %d channels\n", *numEvents, *channels)
}

func caption(rng *rand.Rand) string {
	parts := []string{
		series[rng.IntN(len(series))],
		units[rng.IntN(len(units))],
		fmt.Sprint(rng.IntN(300) + 1),
	}
	if q := quality[rng.IntN(len(quality))]; q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}
