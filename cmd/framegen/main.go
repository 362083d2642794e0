// Command framegen is a synthetic slice generator: a local test/demo
// harness that submits validated ROC payloads directly into a running
// frame-builder's Dispatcher.Submit entrypoint, the same entrypoint a
// real ingress process would call after reassembling a UDP datagram
// into a time-slice. It does not reimplement UDP reassembly.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/config"
	"github.com/jlab-daq/e2sar-framebuilder/internal/dispatcher"
	"github.com/jlab-daq/e2sar-framebuilder/internal/slice"
)

func main() {
	mode := flag.String("mode", "burst", "Generation mode: burst (fixed count then exit) or stream (continuous until signaled).")
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	streams := flag.Int("streams", 1, "Number of distinct dataID streams to emit per frame.")
	count := flag.Int("count", 100, "Number of frames to emit in burst mode.")
	rate := flag.Duration("interval", 10*time.Millisecond, "Time between emitted frames in stream mode.")
	payloadSize := flag.Int("payload-size", 64, "Size in bytes of each synthetic ROC payload, excluding the 32-byte bank prefix.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	d, err := dispatcher.New(*cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := d.Start(nil); err != nil {
		log.Fatalf("Failed to start dispatcher: %v", err)
	}
	defer d.Shutdown()

	switch *mode {
	case "burst":
		runBurst(d, *count, *streams, *payloadSize)
	case "stream":
		runStream(d, *rate, *streams, *payloadSize)
	default:
		flag.Usage()
		os.Exit(1)
	}

	log.Printf("framegen: final counters: %+v", d.Stats())
}

// runBurst submits count frames' worth of slices, one per configured
// stream, then returns.
func runBurst(d *dispatcher.Dispatcher, count, streams, payloadSize int) {
	for frameNum := 0; frameNum < count; frameNum++ {
		ts := uint64(frameNum)
		for streamIdx := 0; streamIdx < streams; streamIdx++ {
			submitSlice(d, ts, uint32(frameNum), uint16(streamIdx), payloadSize)
		}
	}
	log.Printf("framegen: emitted %d frames across %d streams", count, streams)
}

// runStream submits frames at a fixed interval until SIGINT/SIGTERM.
func runStream(d *dispatcher.Dispatcher, interval time.Duration, streams, payloadSize int) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var frameNum uint32
	for {
		select {
		case <-ticker.C:
			ts := uint64(frameNum)
			for streamIdx := 0; streamIdx < streams; streamIdx++ {
				submitSlice(d, ts, frameNum, uint16(streamIdx), payloadSize)
			}
			frameNum++
		case <-sigChan:
			log.Println("framegen: shutdown signal received")
			return
		}
	}
}

// submitSlice builds one well-formed raw wire buffer (CODA magic word at
// word7, ROC-format tag and dataID at word9, frameNumber at word13,
// timestamp split across words 14/15) and runs it through the same
// slice.Validate an ingress process would, deriving the fields passed to
// Dispatcher.Submit from the wire bytes rather than threading them through
// out of band.
func submitSlice(d *dispatcher.Dispatcher, timestamp uint64, frameNumber uint32, dataID uint16, payloadSize int) {
	buf := make([]byte, 64+payloadSize)

	binary.BigEndian.PutUint32(buf[28:32], 0xC0DA0100)
	binary.BigEndian.PutUint32(buf[36:40], 0x00001000|uint32(dataID&0xFF))
	binary.BigEndian.PutUint32(buf[52:56], frameNumber)
	binary.BigEndian.PutUint32(buf[56:60], uint32(timestamp))
	binary.BigEndian.PutUint32(buf[60:64], uint32(timestamp>>32))

	rand.Read(buf[64:])

	v, err := slice.Validate(buf)
	if err != nil {
		log.Printf("framegen: dropping slice, validation failed: %v", err)
		return
	}

	d.Submit(v.Timestamp, v.FrameNumber, v.DataID, v.Buffer)
}
