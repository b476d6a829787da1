package main

import (
	"os"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
