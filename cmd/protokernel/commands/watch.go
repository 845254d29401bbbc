package commands

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"protokernel/registry/devserver"
)

// WatchCommand re-runs an emit whenever the input DFG file's modtime
// changes, pushing the freshly emitted buffer to any connected devices
// via registry/devserver. The teacher's own Builder.Watch is an
// admitted stub ("For now, just build once"); this implements the real
// poll loop instead of copying that placeholder.
func WatchCommand(args []string) error {
	var pushAddr string
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--push" {
			i++
			if i >= len(args) {
				return fmt.Errorf("--push requires an address, e.g. :8089")
			}
			pushAddr = args[i]
			continue
		}
		rest = append(rest, args[i])
	}

	opts, err := ParseEmitArgs(rest)
	if err != nil {
		return err
	}

	var srv *devserver.Server
	if pushAddr != "" {
		srv = devserver.New(pushAddr)
		go func() {
			if err := srv.Serve(); err != nil && !strings.Contains(err.Error(), "Server closed") {
				log.Printf("watch: devserver stopped: %v", err)
			}
		}()
		defer srv.Close()
		log.Printf("watch: pushing to devices on %s/watch", pushAddr)
	}

	var lastMod time.Time
	for {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			return fmt.Errorf("watch: stat %s: %w", opts.InputPath, err)
		}
		if info.ModTime().After(lastMod) {
			lastMod = info.ModTime()
			buf, err := RunEmit(opts)
			if err != nil {
				log.Printf("watch: emit failed: %v", err)
			} else if srv != nil {
				srv.Broadcast(buf)
				log.Printf("watch: pushed %d bytes to %d device(s)", len(buf), srv.ClientCount())
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
}
