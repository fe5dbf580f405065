package conversation

// EventKind says what changed.
type EventKind int

const (
	// EventMessagesChanged fires after every append or clear. Views scroll
	// to the latest message on it.
	EventMessagesChanged EventKind = iota
	EventLoadingChanged
	// EventConfigRequired fires when a send is refused for lack of a webhook URL.
	EventConfigRequired
	EventConfigChanged
)

func (k EventKind) String() string {
	switch k {
	case EventMessagesChanged:
		return "messages_changed"
	case EventLoadingChanged:
		return "loading_changed"
	case EventConfigRequired:
		return "config_required"
	case EventConfigChanged:
		return "config_changed"
	default:
		return "unknown"
	}
}

// Event carries the state right after the change.
type Event struct {
	Kind  EventKind
	State State
}

// Listener is called synchronously on the goroutine that made the change,
// outside the controller lock. It must not block for long.
type Listener func(Event)

// Subscribe registers l and returns a function that removes it.
func (c *Controller) Subscribe(l Listener) (cancel func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}
