package main

import (
	"github.com/eleven-am/voice-relay/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
