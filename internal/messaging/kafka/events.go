package kafka

// Topics аналитического конвейера.
const (
	// TopicAnalyticsEvents принимает события жизненного цикла заказа.
	TopicAnalyticsEvents = "rfs.analytics.events"
	// TopicDeadLetterQueue принимает события, не доставленные после retry.
	TopicDeadLetterQueue = "rfs.dlq"
)
