package storefront

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/cart"
	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/events"
)

const defaultHeartbeat = 25 * time.Second

// Stream pushes refreshed fragments to the browser whenever a pricing signal
// arrives for the cart.
type Stream struct {
	Svc       *Service
	Bus       *events.Bus
	Heartbeat time.Duration
	// Closing ends open streams when the server shuts down.
	Closing <-chan struct{}
	Logger  zerolog.Logger
}

type streamPayload struct {
	Topic     string         `json:"topic,omitempty"`
	Fragments map[string]any `json:"fragments"`
	Degraded  []string       `json:"degraded,omitempty"`
}

// ServeHTTP handles GET /carts/{id}/fragments/stream.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Svc == nil || s.Bus == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "fragment stream not configured", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported", nil)
		return
	}

	ctx := r.Context()
	cartID := cart.IDFromRequest(r)
	userID, _ := common.UserID(ctx)
	clientID := uuid.NewString()
	logger := s.Logger.With().Str("cart_id", cartID).Str("client_id", clientID).Logger()

	signals, cancel := s.Bus.Subscribe(cartID)
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	logger.Debug().Msg("fragment_stream_opened")

	push := func(id, topic string) bool {
		totals, err := s.Svc.Totals(ctx, cartID, userID)
		if err != nil {
			logger.Warn().Err(err).Msg("fragment_stream_compute_failed")
			return true
		}
		if err := writeEvent(w, id, "fragments", streamPayload{Topic: topic, Fragments: RenderAll(totals), Degraded: totals.Degraded}); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !push("", "") {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat())
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("fragment_stream_closed")
			return
		case <-s.Closing:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			// Coalesce signals that arrived while the previous push was running.
			sig = drain(signals, sig)
			if !push(strconv.FormatInt(sig.OccurredAt.UnixMilli(), 10), sig.Topic) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Stream) heartbeat() time.Duration {
	if s.Heartbeat > 0 {
		return s.Heartbeat
	}
	return defaultHeartbeat
}

func drain(signals <-chan events.Signal, last events.Signal) events.Signal {
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return last
			}
			last = sig
		default:
			return last
		}
	}
}

func writeEvent(w http.ResponseWriter, id, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

