package mqtt

// MQTTClient is the slice of the bridge the discovery publisher needs.
type MQTTClient interface {
	GetPrefix() string
	Topics() *Topics
	Publish(topic string, payload interface{}, retain bool)
}
