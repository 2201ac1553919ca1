package mqtt

import "fmt"

func TopicLead(prefix, sessionID string) string {
	return fmt.Sprintf("%s/lead/%s", prefix, sessionID)
}

func TopicLeads(prefix string) string {
	return fmt.Sprintf("%s/lead/+", prefix)
}

func TopicLeadAck(prefix, sessionID string) string {
	return fmt.Sprintf("%s/lead/%s/ack", prefix, sessionID)
}

func TopicLeadAcks(prefix string) string {
	return fmt.Sprintf("%s/lead/+/ack", prefix)
}

func TopicStrategyCall(prefix, requestID string) string {
	return fmt.Sprintf("%s/strategy-call/%s", prefix, requestID)
}

func TopicServerStatus(prefix, clientID string) string {
	return fmt.Sprintf("%s/server/%s/status", prefix, clientID)
}
