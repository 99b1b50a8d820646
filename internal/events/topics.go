package events

// Topic constants for domain events emitted by the valuation service.
const (
	TopicNonStandardItemCreated = "nonstandard_item.created"
	TopicPriceLogAppended       = "price_log.appended"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicNonStandardItemCreated,
		TopicPriceLogAppended,
	}
}
