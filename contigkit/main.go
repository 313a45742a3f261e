package main

import (
	"os"

	"github.com/Doomsbay/ContigKit/contigkit/cmd"
)

func main() {
	cmd.Execute(os.Args[1:])
}
