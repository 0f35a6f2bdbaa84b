package cli

import "testing"

func TestSetupSignalHandler(t *testing.T) {
	ctx := SetupSignalHandler()
	if ctx == nil {
		t.Fatal("Expected a context")
	}
	select {
	case <-ctx.Done():
		t.Fatal("Context canceled without a signal")
	default:
	}
}
