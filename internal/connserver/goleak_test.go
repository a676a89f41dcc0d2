package connserver

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against leaking the per-connection readPump/writePump
// goroutines this package spawns, mirroring the teacher's
// internal/v1/room/goleak_test.go.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
