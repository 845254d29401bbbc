package commands

import (
	"fmt"
	"log"

	"protokernel/registry/devserver"
)

// ServeCommand starts a standalone devserver push endpoint with no
// associated watch loop, for the case where a simulator wants to
// connect before any emit has happened yet.
func ServeCommand(args []string) error {
	addr := ":8089"
	if len(args) > 0 {
		addr = args[0]
	}
	srv := devserver.New(addr)
	log.Printf("serve: listening on %s/watch", addr)
	if err := srv.Serve(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
