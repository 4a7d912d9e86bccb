package cli

import (
	"fmt"
	"io"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "\x1b[1;33mWarning\x1b[0m: "+format+"\n", a...)
}
