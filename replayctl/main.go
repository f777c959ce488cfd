package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"replaynav.com/replaysync"
)

const ReplayCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)

	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
}

func main() {
	usage := `Replay timeline control.

Connects to a replay surface over websocket, discovers the captured
snapshots for the page the surface is displaying, and navigates them.

Usage:
    replayctl timeline --surface_url=<surface_url> [--watch]
    replayctl next --surface_url=<surface_url>
    replayctl prev --surface_url=<surface_url>
    replayctl goto --surface_url=<surface_url> <index>
    replayctl interactive --surface_url=<surface_url>

Options:
    -h --help                    Show this screen.
    --version                    Show version.
    --surface_url=<surface_url>  Websocket url of the replay surface.
    --watch                      Keep printing the timeline on every refresh.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ReplayCtlVersion)
	if err != nil {
		panic(err)
	}

	if timeline_, _ := opts.Bool("timeline"); timeline_ {
		timeline(opts)
	} else if next_, _ := opts.Bool("next"); next_ {
		nav(opts, func(sync *replaysync.TimelineSync) {
			sync.Next()
		})
	} else if prev_, _ := opts.Bool("prev"); prev_ {
		nav(opts, func(sync *replaysync.TimelineSync) {
			sync.Previous()
		})
	} else if goto_, _ := opts.Bool("goto"); goto_ {
		rawIndex, _ := opts.String("<index>")
		nav(opts, func(sync *replaysync.TimelineSync) {
			sync.JumpTo(rawIndex)
		})
	} else if interactive_, _ := opts.Bool("interactive"); interactive_ {
		interactive(opts)
	}
}

func connect(ctx context.Context, opts docopt.Opts) *replaysync.TimelineSync {
	surfaceUrl, _ := opts.String("--surface_url")

	transport, err := replaysync.NewSurfaceTransportWithDefaults(ctx, surfaceUrl)
	if err != nil {
		Err.Fatalf("Could not resolve surface: %s", err)
	}

	sync := replaysync.NewTimelineSyncWithDefaults(ctx, transport)
	transport.SetSink(sync)
	if err := sync.Activate(); err != nil {
		Err.Fatalf("Could not activate: %s", err)
	}
	return sync
}

// block until the first collection metadata has been received. The wait is
// unbounded, matching the discovery phase - interrupt to give up.
func awaitReady(sync *replaysync.TimelineSync) {
	refresh := make(chan struct{}, 1)
	unsub := sync.AddRefreshCallback(func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	defer unsub()

	for sync.State() != replaysync.SyncStateReady {
		select {
		case <-refresh:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func printTimeline(sync *replaysync.TimelineSync) {
	timeline := sync.Timeline()
	index := sync.TimelineIndex()
	url := sync.Url()

	Out.Printf("%s (%d snapshots)", url, len(timeline))
	for i, ts := range timeline {
		marker := " "
		if i == index {
			marker = "*"
		}
		Out.Printf("%s %3d  %d", marker, i, ts)
	}
}

func timeline(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := connect(cancelCtx, opts)
	defer sync.Deactivate()
	awaitReady(sync)
	printTimeline(sync)

	if watch_, _ := opts.Bool("--watch"); watch_ {
		refresh := make(chan struct{}, 1)
		unsub := sync.AddRefreshCallback(func() {
			select {
			case refresh <- struct{}{}:
			default:
			}
		})
		defer unsub()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case <-refresh:
				Out.Printf("")
				printTimeline(sync)
			}
		}
	}
}

func nav(opts docopt.Opts, op func(sync *replaysync.TimelineSync)) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := connect(cancelCtx, opts)
	defer sync.Deactivate()
	awaitReady(sync)
	op(sync)
	// let the outbound switch flush before teardown
	time.Sleep(250 * time.Millisecond)
	printTimeline(sync)
}

func interactive(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := connect(cancelCtx, opts)
	defer sync.Deactivate()
	awaitReady(sync)

	state, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		Err.Fatalf("Could not enter raw mode: %s", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), state)

	refresh := make(chan struct{}, 1)
	unsub := sync.AddRefreshCallback(func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	defer unsub()

	keys := make(chan byte)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := os.Stdin.Read(buf); err != nil {
				close(keys)
				return
			}
			select {
			case <-cancelCtx.Done():
				return
			case keys <- buf[0]:
			}
		}
	}()

	drawBar(sync)
	for {
		select {
		case <-cancelCtx.Done():
			return
		case <-refresh:
			drawBar(sync)
		case key, ok := <-keys:
			if !ok {
				return
			}
			switch {
			case key == 'n' || key == 'l':
				sync.Next()
			case key == 'p' || key == 'h':
				sync.Previous()
			case '0' <= key && key <= '9':
				sync.JumpTo(string(key))
			case key == 'q' || key == 3:
				// q or ctrl-c
				fmt.Print("\r\n")
				return
			}
		}
	}
}

// a one line slider: [---|------] 3/10 ts=20110902...
func drawBar(sync *replaysync.TimelineSync) {
	timeline := sync.Timeline()
	index := sync.TimelineIndex()

	var bar strings.Builder
	bar.WriteByte('[')
	for i := range timeline {
		if i == index {
			bar.WriteByte('|')
		} else {
			bar.WriteByte('-')
		}
	}
	bar.WriteByte(']')
	if 0 <= index {
		fmt.Printf("\r\033[K%s %d/%d ts=%d", bar.String(), index+1, len(timeline), timeline[index])
	} else {
		fmt.Printf("\r\033[K%s -/%d", bar.String(), len(timeline))
	}
}
