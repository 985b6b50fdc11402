// scanrec is a one-shot recorder: it captures N seconds of analog input to a
// binary file with a JSON sidecar, with no server in the loop.  Useful for
// spot checks of channel wiring and noise floors.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/theckman/yacspin"

	"github.com/jlarkin/scanaux/daq"
	"github.com/jlarkin/scanaux/recorder"
	"github.com/jlarkin/scanaux/sim"
	"github.com/jlarkin/scanaux/vdaq"
)

func parseChannels(s string) ([]int, error) {
	pieces := strings.Split(s, ",")
	out := make([]int, 0, len(pieces))
	for _, p := range pieces {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("channel list must be comma separated integers: %w", err)
		}
		out = append(out, i)
	}
	return out, nil
}

// record streams capture blocks from task into sess for duration d.  The
// session is not goroutine safe, so the delivery callback only queues
// blocks; all writes and counter reads happen on the calling goroutine.
func record(task daq.AnalogCapturer, sess *recorder.Session, d time.Duration, progress func(blocks, bytes int)) error {
	blocks := make(chan daq.Block, 16)
	errCh := make(chan error, 1)
	task.OnBlock(func(b daq.Block) {
		select {
		case blocks <- b:
		default:
			// writer fell behind; drop rather than stall delivery
		}
	})
	task.OnCaptureError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	if err := task.StartCapture(); err != nil {
		return fmt.Errorf("error starting capture: %w", err)
	}
	deadline := time.After(d)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-deadline:
			break loop
		case b := <-blocks:
			if err := sess.AppendBlock(b); err != nil {
				task.StopCapture()
				return fmt.Errorf("write failed: %w", err)
			}
		case err := <-errCh:
			task.StopCapture()
			return fmt.Errorf("capture failed: %w", err)
		case <-ticker.C:
			if progress != nil {
				progress(sess.Blocks, sess.Bytes)
			}
		}
	}
	task.StopCapture()
	// collect a block that was already queued when capture stopped
drain:
	for {
		select {
		case b := <-blocks:
			if err := sess.AppendBlock(b); err != nil {
				break drain
			}
		default:
			break drain
		}
	}
	return nil
}

func main() {
	var (
		out      = flag.String("o", "scanrec.bin", "output file")
		seconds  = flag.Float64("seconds", 5, "capture duration")
		channels = flag.String("channels", "0,1", "comma separated channel indices")
		names    = flag.String("names", "", "comma separated channel names (optional)")
		rate     = flag.Float64("rate", 125e3, "sample rate, Hz")
		backend  = flag.String("backend", "sim", "acquisition backend, sim or vdaq")
		addr     = flag.String("addr", "192.168.100.40:9750", "vdaq chassis address")
		serial   = flag.Bool("serial", false, "vdaq over RS232 instead of TCP")
		fits     = flag.String("fits", "", "also export the recording to this FITS file")
	)
	flag.Parse()

	chans, err := parseChannels(*channels)
	if err != nil {
		log.Fatal(err)
	}
	meta := recorder.Metadata{
		ChannelIndices: chans,
		SampleRate:     *rate,
		VoltageRange:   [2]float64{-10, 10},
	}
	if *names != "" {
		meta.ChannelNames = strings.Split(*names, ",")
	} else {
		for _, ch := range chans {
			meta.ChannelNames = append(meta.ChannelNames, fmt.Sprintf("ch%d", ch))
		}
	}

	var task interface {
		daq.AnalogCapturer
		daq.Releaser
	}
	switch *backend {
	case "sim":
		task = sim.New()
	case "vdaq":
		task, err = vdaq.New(*addr, *serial)
		if err != nil {
			log.Fatal("error connecting to chassis: ", err)
		}
	default:
		log.Fatal("backend must be sim or vdaq")
	}
	defer task.Release()

	sess, err := recorder.Open(*out, meta)
	if err != nil {
		log.Fatal("error opening output: ", err)
	}

	cfg := yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " recording",
		SuffixAutoColon: true,
		StopCharacter:   "done",
	}
	spinner, err := yacspin.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if err := task.ConfigureCapture(chans, *rate); err != nil {
		log.Fatal("error configuring capture: ", err)
	}
	spinner.Start()
	err = record(task, sess, time.Duration(*seconds*float64(time.Second)), func(blocks, bytes int) {
		spinner.Message(fmt.Sprintf("%d blocks, %d bytes", blocks, bytes))
	})
	if err != nil {
		spinner.StopFail()
		sess.Close()
		log.Fatal(err)
	}
	spinner.Stop()
	if err := sess.Close(); err != nil {
		log.Fatal("error closing session: ", err)
	}
	fmt.Printf("wrote %d bytes to %s\n", sess.Bytes, *out)
	fmt.Println("sidecar at", recorder.SidecarPath(*out))

	if *fits != "" {
		rec, err := recorder.Read(*out)
		if err != nil {
			log.Fatal("error reading recording back: ", err)
		}
		f, err := os.Create(*fits)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := recorder.ExportFITS(f, rec); err != nil {
			log.Fatal("error exporting FITS: ", err)
		}
		fmt.Println("FITS export at", *fits)
	}
}
