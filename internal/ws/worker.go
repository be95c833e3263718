package ws

import (
	"context"
	"log"
	"time"
)

// StartCleanupWorker runs the recurring retention pass: stale queue entries,
// expired and abandoned game rooms, and old chat messages.
func (co *Coordinator) StartCleanupWorker(ctx context.Context) {
	interval := time.Duration(co.cfg.CleanupIntervalSecs) * time.Second
	log.Printf("[CLEANUP] Worker started (every %v)", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[CLEANUP] Worker stopped")
				return
			case <-ticker.C:
				queue := co.matches.Cleanup()
				rooms := co.games.Cleanup()
				messages := co.chat.CleanupOldMessages()
				if queue+rooms+messages > 0 {
					log.Printf("[CLEANUP] Purged queue=%d rooms=%d messages=%d", queue, rooms, messages)
				}
			}
		}
	}()
}

// PurgeAll runs one cleanup pass immediately. Used by the admin surface.
func (co *Coordinator) PurgeAll() (queue, rooms, messages int) {
	return co.matches.Cleanup(), co.games.Cleanup(), co.chat.CleanupOldMessages()
}
