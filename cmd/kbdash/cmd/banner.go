package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _    _         _           _
 | | _| |__   __| | __ _ ___| |__
 | |/ / '_ \ / _` + "`" + ` |/ _` + "`" + ` / __| '_ \
 |   <| |_) | (_| | (_| \__ \ | | |
 |_|\_\_.__/ \__,_|\__,_|___/_| |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Knowledge Base Dashboard - Version %s\x1b[0m\n\n", Version)
}
