package observer

import (
	"strings"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// Predicate decides whether an observer wants a record
type Predicate func(tx *types.ClassifiedTransaction) bool

// MatchTopic selects records carrying the exact topic
func MatchTopic(topic string) Predicate {
	return func(tx *types.ClassifiedTransaction) bool {
		return tx.HasTopic(topic)
	}
}

// MatchPrefix selects records with any topic starting with prefix,
// e.g. "transfer" or "delegation:"
func MatchPrefix(prefix string) Predicate {
	return func(tx *types.ClassifiedTransaction) bool {
		for _, t := range tx.NotificationTopics {
			if strings.HasPrefix(t, prefix) {
				return true
			}
		}
		return false
	}
}

// MatchAny selects every record that carries at least one topic
func MatchAny() Predicate {
	return func(tx *types.ClassifiedTransaction) bool {
		return len(tx.NotificationTopics) > 0
	}
}

// MatchAnyOf selects records carrying at least one of the topics. With no
// topics it behaves like MatchAny.
func MatchAnyOf(topics ...string) Predicate {
	if len(topics) == 0 {
		return MatchAny()
	}
	return func(tx *types.ClassifiedTransaction) bool {
		for _, t := range topics {
			if tx.HasTopic(t) {
				return true
			}
		}
		return false
	}
}
