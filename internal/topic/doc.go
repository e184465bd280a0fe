// Package topic parses MQTT topic filters and routes concrete topics to the
// subscription that should handle them.
//
// A filter is a "/"-separated sequence of segments. A segment is either a
// literal, the single-level wildcard "+" (exactly one topic segment) or the
// multi-level wildcard "#" (one or more trailing segments, last position
// only).
//
// The Router keeps every registered Subscription and, for a given topic,
// selects exactly one of them: the most specific match. This lets the
// building-wide catch-all ("electricity/building/+/+") coexist with
// per-apartment filters ("electricity/building/floor/301") without a message
// being processed twice.
//
// # Usage
//
//	r := topic.NewRouter()
//	sub, _ := topic.NewSubscription("electricity/building/+/+", topic.KeyLast)
//	r.Add(sub)
//
//	if _, key, ok := r.Match("electricity/building/3/301"); ok {
//	    fmt.Println(key) // 301
//	}
package topic
