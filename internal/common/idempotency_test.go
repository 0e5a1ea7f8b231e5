package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdemRejectsReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	calls := 0
	handler := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(path, key string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, send("/carts/a/coupon", "k1"))
	require.Equal(t, http.StatusConflict, send("/carts/a/coupon", "k1"))
	require.Equal(t, http.StatusOK, send("/carts/b/coupon", "k1"))
	require.Equal(t, http.StatusOK, send("/carts/a/coupon", ""))
	require.Equal(t, 3, calls)

	mr.FastForward(2 * time.Minute)
	require.Equal(t, http.StatusOK, send("/carts/a/coupon", "k1"))
}
