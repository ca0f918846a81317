// Command dsidm manages identity entries, service accounts in particular, in
// a 389 Directory Server style directory.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

func main() {
	if err := newRootCmd(newApp(os.Stdout)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode separates errors the user can fix from directory or transport
// failures.
func exitCode(err error) int {
	var mErr *mapping.Error
	if !errors.As(err, &mErr) {
		return exitUserError
	}
	switch mErr.Kind {
	case mapping.KindConnection, mapping.KindCodec:
		return exitSysError
	default:
		return exitUserError
	}
}
