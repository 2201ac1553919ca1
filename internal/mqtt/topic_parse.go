package mqtt

import (
	"fmt"
	"strings"
)

// expected: {prefix}/lead/{sessionId}/ack
func ParseAckSessionID(topic, prefix string) (string, error) {
	parts := strings.Split(topic, "/")
	prefixParts := strings.Split(prefix, "/")
	if len(parts) != len(prefixParts)+3 {
		return "", fmt.Errorf("invalid topic: %s", topic)
	}
	for i, p := range prefixParts {
		if parts[i] != p {
			return "", fmt.Errorf("topic prefix mismatch: %s", topic)
		}
	}
	if parts[len(prefixParts)] != "lead" || parts[len(parts)-1] != "ack" {
		return "", fmt.Errorf("invalid topic pattern: %s", topic)
	}
	sessionID := parts[len(prefixParts)+1]
	if sessionID == "" {
		return "", fmt.Errorf("empty session id: %s", topic)
	}
	return sessionID, nil
}
