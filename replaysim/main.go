package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"

	"replaynav.com/replaysync"
	"replaynav.com/replaysync/sim"
)

const ReplaySimVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)

	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
}

func main() {
	usage := `Simulated replay surface.

Serves the surface side of the replay sync contract over websocket, for
developing and testing host controls without a real archive.

Usage:
    replaysim serve [--port=<port>] [--pages=<pages_json>]
        [--url=<url>] [--ts=<ts>]
        [--ready_delay=<ready_delay>]

Options:
    -h --help                    Show this screen.
    --version                    Show version.
    -p --port=<port>             Listen port [default: 8654].
    --pages=<pages_json>         Json file with {"pages": [{"url", "ts"}, ...]}.
    --url=<url>                  Starting page url.
    --ts=<ts>                    Starting timestamp.
    --ready_delay=<ready_delay>  Millis before metadata requests are answered [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ReplaySimVersion)
	if err != nil {
		panic(err)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	}
}

func serve(opts docopt.Opts) {
	port, _ := opts.Int("--port")
	readyDelayMillis, _ := opts.Int("--ready_delay")

	collInfo := demoCollInfo()
	if pagesPathAny := opts["--pages"]; pagesPathAny != nil {
		pagesJson, err := os.ReadFile(pagesPathAny.(string))
		if err != nil {
			Err.Fatalf("Could not read pages: %s", err)
		}
		collInfo = &replaysync.CollectionInfo{}
		if err := json.Unmarshal(pagesJson, collInfo); err != nil {
			Err.Fatalf("Could not parse pages: %s", err)
		}
		if len(collInfo.Pages) == 0 {
			Err.Fatalf("Pages file has no pages.")
		}
	}

	url := collInfo.Pages[0].Url
	if urlAny := opts["--url"]; urlAny != nil {
		url = urlAny.(string)
	}
	ts := collInfo.Pages[0].Ts
	if tsAny := opts["--ts"]; tsAny != nil {
		if parsed, err := strconv.ParseInt(tsAny.(string), 10, 64); err == nil {
			ts = parsed
		}
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := sim.DefaultSurfaceSettings()
	settings.CollInfoDelay = time.Duration(readyDelayMillis) * time.Millisecond

	surface := sim.NewSurface(cancelCtx, collInfo, url, ts, settings)
	defer surface.Close()

	Out.Printf("replaysim listening on :%d (%d pages, displaying %s @ %d)", port, len(collInfo.Pages), url, ts)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), surface); err != nil {
		Err.Fatalf("%s", err)
	}
}

func demoCollInfo() *replaysync.CollectionInfo {
	return &replaysync.CollectionInfo{
		Pages: []replaysync.PageRecord{
			{Url: "https://example.com/", Ts: 20200101000000},
			{Url: "https://example.com/", Ts: 20210101000000},
			{Url: "https://example.com/", Ts: 20220101000000},
			{Url: "https://example.com/about", Ts: 20210601000000},
		},
	}
}
