package accel

import (
	"context"

	"github.com/marmos91/dittoaccel/internal/logger"
)

// Finish tears the framework down asynchronously and calls done when every
// phase has completed:
//
//  1. close the keyring, destroy every crypto key and wait for creates
//     that were already underway to back out
//  2. clear the opcode assignment table
//  3. refuse new channels and wait until every live channel has been put
//  4. finalize the initialized modules one at a time, in registration
//     order, each signalling through its own done callback
//
// Owners of live channels must Put them for step 3 to complete. Finish
// returns ErrShutdown if teardown is already underway.
func (fw *Framework) Finish(done func()) error {
	if !fw.finishing.CompareAndSwap(false, true) {
		return opError("finish", ErrShutdown)
	}

	go func() {
		for _, k := range fw.closeKeyring() {
			if err := fw.DestroyCryptoKey(k); err != nil {
				logger.Warn("accel finish: key destroy failed", logger.KeyKeyName, k.Name(), logger.KeyError, err)
			}
		}
		fw.keyCreates.Wait()

		fw.table.Store(nil)

		if wait := fw.unregisterChannels(); wait != nil {
			logger.Info("accel finish: waiting for live channels", "live", fw.LiveChannels())
			<-wait
		}

		fw.finiModule(0, func() {
			fw.modules = nil
			fw.inited = 0
			logger.Info("accel framework finished")
			if done != nil {
				done()
			}
		})
	}()
	return nil
}

// unregisterChannels blocks new channels and returns a channel closed when
// the last live one is put, or nil if none are live.
func (fw *Framework) unregisterChannels() <-chan struct{} {
	fw.chMu.Lock()
	defer fw.chMu.Unlock()

	fw.unregistered = true
	if fw.liveChannels == 0 {
		return nil
	}
	fw.drained = make(chan struct{})
	return fw.drained
}

// finiModule finalizes module i and chains to i+1 from its done callback.
func (fw *Framework) finiModule(i int, done func()) {
	if i >= fw.inited {
		done()
		return
	}
	m := fw.modules[i]
	logger.Debug("accel finalizing module", logger.KeyModule, m.Name())
	m.Fini(func() {
		fw.finiModule(i+1, done)
	})
}

// Shutdown runs Finish and waits for it, or for ctx to end.
func (fw *Framework) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	if err := fw.Finish(func() { close(finished) }); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
