package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
)

// Shutdown stops the process in dependency order: open streams, the http
// server, background loops, the chat core, then the store. The store is
// left open when the server or the actors did not stop in time.
func (a *App) Shutdown(ctx context.Context) error {
	a.setState("shutting_down")
	var errs []error
	// the store stays open unless nothing can still reach it
	drained := true

	a.api.Drain()
	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		case <-ctx.Done():
			drained = false
			errs = append(errs, fmt.Errorf("http shutdown: %w", ctx.Err()))
		}
	}

	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.bg.Wait()

	if err := a.chat.Close(ctx); err != nil {
		drained = false
		errs = append(errs, fmt.Errorf("chat close: %w", err))
	}
	a.api.Close()
	if drained {
		if err := a.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	} else {
		logger.Warn("store_close_skipped", "reason", "requests or actors still running")
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("shutdown_incomplete", "error", err)
		return err
	}
	a.setState("stopped")
	logger.Info("shutdown_complete")
	return nil
}
