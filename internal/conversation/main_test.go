package conversation

import (
	"testing"

	"go.uber.org/goleak"
)

// Reveal goroutines must not outlive their conversation.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
