package mqtt

import (
	"fmt"
	"sort"
)

// Subscribe registers handler for a topic filter, which may use the + and
// # wildcards (for example Topics().AllReadings()). The filter is remembered
// and re-subscribed after every reconnect. Handlers run on paho goroutines;
// a panicking handler is recovered and logged.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(subscription{topic: topic, qos: qos, handler: handler})
	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		c.untrack(topic)
		return err
	}
	return nil
}

// Unsubscribe forgets a topic filter and removes it at the broker. Messages
// already in flight may still be delivered to the old handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(topic)
	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// Subscriptions returns the remembered topic filters in sorted order.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	c.subMu.RUnlock()

	sort.Strings(topics)
	return topics
}

func (c *Client) track(sub subscription) {
	c.subMu.Lock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]subscription)
	}
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
