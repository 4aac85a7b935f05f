package realtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// deliveryReport summarizes one fan-out.
type deliveryReport struct {
	Targeted  int
	Delivered int
	// Failures joins every per-recipient error; it is logged, never
	// surfaced to the sender.
	Failures error
}

// fanout enqueues evt on every target concurrently and waits for all of
// them. A failure on one recipient never stops delivery to its siblings.
// Because fanout returns only after every enqueue finished, successive calls
// from the same sender reach each recipient queue in call order.
func fanout(channel string, targets []*Session, evt Event, log zerolog.Logger) deliveryReport {
	fanoutSize.WithLabelValues(channel).Observe(float64(len(targets)))
	rep := deliveryReport{Targeted: len(targets)}
	if len(targets) == 0 {
		return rep
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range targets {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			err := deliverOne(s, evt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("deliver to %s: %w", s.ID, err))
				return
			}
			rep.Delivered++
		}(s)
	}
	wg.Wait()

	for _, err := range errs {
		outcome := "error"
		switch {
		case errors.Is(err, ErrSessionClosed):
			outcome = "closed"
		case errors.Is(err, ErrBackpressure):
			outcome = "backpressure"
		}
		deliveries.WithLabelValues(channel, outcome).Inc()
	}
	deliveries.WithLabelValues(channel, "delivered").Add(float64(rep.Delivered))

	rep.Failures = errors.Join(errs...)
	if rep.Failures != nil {
		log.Warn().Err(rep.Failures).
			Str("event", evt.Type).
			Int("targeted", rep.Targeted).
			Int("delivered", rep.Delivered).
			Msg("partial delivery")
	}
	return rep
}

// deliverOne enqueues evt on s, converting a panic into an error so one bad
// recipient cannot take down the broadcast.
func deliverOne(s *Session, evt Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during delivery: %v", rec)
		}
	}()
	return s.Enqueue(evt)
}
