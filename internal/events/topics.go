package events

// Topic constants for signals emitted when pricing inputs change.
const (
	TopicCartChanged     = "cart.changed"
	TopicCouponChanged   = "coupon.changed"
	TopicShippingChanged = "shipping.changed"
)

// DefaultTopics returns the canonical list of topics fragment streams react to.
func DefaultTopics() []string {
	return []string{
		TopicCartChanged,
		TopicCouponChanged,
		TopicShippingChanged,
	}
}

func knownTopic(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
