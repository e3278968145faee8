package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated     = "order.created"
	TopicPaymentCaptured  = "payment.captured"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentCancelled = "payment.cancelled"
)
