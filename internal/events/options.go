package events

type ProducerOptions func(e *EventProducer)

// WithOutputTopic overrides the topic lifecycle events are published on.
func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

// WithSource overrides the cloudevents source attribute, so multiple
// deployments can share one topic.
func WithSource(source string) ProducerOptions {
	return func(e *EventProducer) {
		e.source = source
	}
}
