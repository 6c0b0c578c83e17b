package subscription

// Conn is the owning connection as seen by a subscription. Calls are
// made without the subscription lock held.
type Conn interface {
	// SendSubscriptionMessage announces sub to the server.
	SendSubscriptionMessage(sub *Subscription) error
	// SendUnsubscribeMessage tells the server to stop delivering to sub,
	// after sub.UnsubscribeMax() messages when that is positive.
	SendUnsubscribeMessage(sub *Subscription) error
	// RemoveSubscription detaches sub from the routing table.
	RemoveSubscription(sub *Subscription)
	// Publish sends data to subject.
	Publish(subject string, data []byte) error
}
