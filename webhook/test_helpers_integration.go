//go:build integration

package webhook

import (
	"fmt"
	"testing"
	"time"
)

// GenerateID generates a unique endpoint or delivery ID for testing
func GenerateID(t *testing.T, index int) string {
	t.Helper()
	return fmt.Sprintf("test-%s-%d-%d", t.Name(), index, time.Now().UnixNano())
}
