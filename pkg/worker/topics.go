package worker

import (
	"strings"

	"githubevents/internal"
)

// TopicsFromRules returns every topic the rules can emit, in first-seen order.
func TopicsFromRules(rules []internal.Rule) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, rule := range rules {
		for _, topic := range rule.Emit {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				continue
			}
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	return topics
}
