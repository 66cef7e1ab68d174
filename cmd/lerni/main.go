package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/torenunez/lerni/internal/capture"
	"github.com/torenunez/lerni/internal/storage/models"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()

	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render(describe(err)))
	return 1
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	var lookup *models.LookupError
	switch {
	case errors.Is(err, capture.ErrAborted):
		return err.Error()
	case errors.As(err, &lookup):
		if errors.Is(err, models.ErrAmbiguousReference) {
			return fmt.Sprintf("%s (use more characters of the id)", lookup.Error())
		}
		return lookup.Error()
	default:
		return "Error: " + err.Error()
	}
}
