package pipeline

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

// Interrupts traps SIGINT and SIGTERM for a run. The first signal closes
// the returned stop channel so the run ends at the next stage boundary;
// a second one cancels the returned context, rolling back whatever is in
// flight. Call release when the run is over.
func Interrupts(parent context.Context) (ctx context.Context, stop <-chan struct{}, release func()) {
	ctx, cancel := context.WithCancel(parent)
	stopCh := make(chan struct{})
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			logging.Warn().
				Str("signal", sig.String()).
				Msg("Received shutdown signal, finishing current stage; repeat to abort")
			close(stopCh)
		case <-done:
			return
		}
		select {
		case sig := <-sigChan:
			logging.Warn().Str("signal", sig.String()).Msg("Aborting current stage")
			cancel()
		case <-done:
		}
	}()

	return ctx, stopCh, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}
