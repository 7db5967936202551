package mqtt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// subscription is what is needed to restore a subscription after reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet tracks active subscriptions by topic filter.
// The zero value is ready to use.
type subscriptionSet struct {
	mu   sync.RWMutex
	byID map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	if s.byID == nil {
		s.byID = make(map[string]subscription)
	}
	s.byID[sub.topic] = sub
	s.mu.Unlock()
}

func (s *subscriptionSet) drop(topic string) {
	s.mu.Lock()
	delete(s.byID, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) each(fn func(subscription)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.byID {
		fn(sub)
	}
}

// topics returns the tracked topic filters in sorted order.
func (s *subscriptionSet) topics() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.byID))
	for topic := range s.byID {
		out = append(out, topic)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Subscribe registers handler for topic, which may use the + and #
// wildcards (e.g. Topics{}.AllCommandRequests()). The subscription is
// restored automatically after a reconnect until Unsubscribe is called.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateTopicFilter(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{topic: topic, qos: qos, handler: handler}
	c.subs.put(sub)

	token := c.client.Subscribe(topic, qos, c.deliverTo(handler))
	var err error
	if token.WaitTimeout(defaultPublishTimeout) {
		err = token.Error()
	} else {
		err = fmt.Errorf("no SUBACK after %v", defaultPublishTimeout)
	}
	if err != nil {
		c.subs.drop(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe stops delivery for a filter previously passed to Subscribe.
// Messages already in flight may still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if err := validateTopicFilter(topic); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.drop(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: no UNSUBACK after %v", ErrUnsubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// validateTopicFilter checks MQTT wildcard placement: + must fill a whole
// level and # must be the whole last level.
func validateTopicFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q: # must be the last level", ErrInvalidTopic, topic)
		case level != "#" && level != "+" && strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q: wildcard inside a level", ErrInvalidTopic, topic)
		}
	}
	return nil
}

// validateTopicName checks a publish topic, which may not contain wildcards.
func validateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q: wildcards are not allowed when publishing", ErrInvalidTopic, topic)
	}
	return nil
}
