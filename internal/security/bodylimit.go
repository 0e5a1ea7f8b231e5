package security

import (
	"net/http"

	"github.com/noah-isme/toko-pricing/internal/common"
)

// DefaultBodyLimit fits any coupon or shipping payload with room to spare.
const DefaultBodyLimit int64 = 16 << 10

// BodyLimit enforces a maximum request payload size.
type BodyLimit struct {
	Max int64
}

// Middleware rejects requests whose declared length exceeds the limit and caps
// the body reader for the rest. Handlers see a decode error once the cap is hit.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		max := b.Max
		if max <= 0 {
			max = DefaultBodyLimit
		}
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, max)
		next.ServeHTTP(w, r)
	})
}
