package main

import (
	"context"
	"fmt"
	"os"

	"refract-server-go/internal/bootstrap"
)

func main() {
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "refract-server failed: %v\n", err)
		os.Exit(1)
	}
}
