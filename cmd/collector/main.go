package main

import (
	"os"

	"loadsignal.dev/collector/internal/app"
)

func main() {
	os.Exit(app.Run())
}
