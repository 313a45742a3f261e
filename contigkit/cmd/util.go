package cmd

import (
	"fmt"
	"os"

	"github.com/Doomsbay/ContigKit/internal/logger"
)

func logf(format string, args ...any) {
	logger.Info(fmt.Sprintf(format, args...))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
