package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func BenchmarkFetchNumbers(b *testing.B) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(numbersBody))
	}))
	defer srv.Close()

	c, err := NewHTTPSolverClient(srv.URL, 2*time.Second)
	if err != nil {
		b.Fatalf("NewHTTPSolverClient() error = %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.FetchNumbers(ctx, "numbers"); err != nil {
			b.Fatalf("FetchNumbers() error = %v", err)
		}
	}
}

func BenchmarkCategorizeError(b *testing.B) {
	err := context.DeadlineExceeded
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CategorizeError(err)
	}
}
