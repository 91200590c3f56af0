package mqutils

import "fmt"

// used for passing tracing data between Publish and the consumer middlewares
const opentracingData = "opentracing_data"

// NewExchangeName placeholder in format "{owner}.{name_you_desire}"
// example result: "subscriptions.primary"
func NewExchangeName(appName, exchangeName string) string {
	if appName == "" {
		return exchangeName
	}
	return fmt.Sprintf("%s.%s", appName, exchangeName)
}

// NewQueueName placeholder in format: "{owner}.{ENV}.{name_you_desire}"
// example result: "subscriptions.prod.primary"
// ENV keeps testing queues apart from production ones. Empty parts are
// skipped.
func NewQueueName(appName, appEnv, queueName string) string {
	name := queueName
	if appEnv != "" {
		name = fmt.Sprintf("%s.%s", appEnv, name)
	}
	if appName != "" {
		name = fmt.Sprintf("%s.%s", appName, name)
	}
	return name
}

// NewWorkerQueueName names the queue of the n-th independent worker, so
// every worker gets its own copy of each message.
func NewWorkerQueueName(queueName string, n int) string {
	return fmt.Sprintf("%s.%d", queueName, n)
}
