package analytics

import (
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewConsumerID names this replica inside the hit stream's consumer group.
// The ULID suffix keeps restarted pods from inheriting a dead consumer's
// pending entries by name.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "redirector"
	}
	return host + "-" + strings.ToLower(ulid.Make().String())
}
