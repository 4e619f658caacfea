//go:build integration
// +build integration

package degraded

import (
	"context"
	"testing"
	"time"

	"github.com/onlinefem/onlinefem/internal/client"
	"github.com/onlinefem/onlinefem/internal/testhelpers"
)

// TestIntegration_DegradedState_Detection verifies that an unreachable solver
// fails the recovery validate check.
func TestIntegration_DegradedState_Detection(t *testing.T) {
	testhelpers.RequireSolver(t)

	// Point at a port nothing listens on to simulate an unreachable solver.
	deadClient, err := client.NewHTTPSolverClient("http://127.0.0.1:1", 2*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSolverClient() error = %v", err)
	}

	ctx := context.Background()
	if err := deadClient.Ping(ctx); err == nil {
		t.Error("Ping() error = nil, want error for unreachable solver")
	}
}

// TestIntegration_DegradedState_RecoverySequence verifies the Fibonacci
// backoff delay sequence against a live solver.
func TestIntegration_DegradedState_RecoverySequence(t *testing.T) {
	solverClient := testhelpers.SetupIntegrationClient(t)

	initialDelay := 1 * time.Minute
	maxDelay := 20 * time.Minute

	delays := fibDelays(initialDelay, maxDelay)
	if len(delays) == 0 {
		t.Fatal("No recovery delays generated")
	}
	if delays[0] != initialDelay {
		t.Errorf("First delay = %v, want %v", delays[0], initialDelay)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("Delay %d (%v) should be greater than delay %d (%v)", i, delays[i], i-1, delays[i-1])
		}
	}
	for i, delay := range delays {
		if delay > maxDelay {
			t.Errorf("Delay %d (%v) exceeds maxDelay %v", i, delay, maxDelay)
		}
	}

	// Validate setup against the live solver.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := solverClient.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v, want nil for live solver", err)
	}
}

// TestIntegration_DegradedState_RecoveryOverrides verifies test-only
// recovery overrides work correctly.
func TestIntegration_DegradedState_RecoveryOverrides(t *testing.T) {
	SetRecoveryDisabled(true)
	defer ClearRecoveryOverrides()

	if !IsRecoveryDisabled() {
		t.Error("Recovery should be disabled")
	}

	ClearRecoveryOverrides()
	SetForceSucceedNextAttempt(true)

	ClearRecoveryOverrides()
	if IsRecoveryDisabled() {
		t.Error("Recovery should not be disabled after ClearRecoveryOverrides")
	}
}

// TestIntegration_DegradedState_ErrorTracking verifies error rate tracking
// alongside live solver traffic.
func TestIntegration_DegradedState_ErrorTracking(t *testing.T) {
	testhelpers.RequireSolver(t)

	Reset()
	RecordError()
	RecordError()
	RecordSuccess()
	RecordSuccess()
	RecordSuccess()

	errors, total := ErrorRate(1 * time.Minute)
	if total != 5 {
		t.Errorf("ErrorRate() total = %d, want 5", total)
	}
	if errors != 2 {
		t.Errorf("ErrorRate() errors = %d, want 2", errors)
	}

	Reset()
}
