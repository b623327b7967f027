package chatclient

import "sync"

// Conversation is the reconciled local view of one conversation. The
// snapshot fetch and the live subscription start concurrently, so the same
// message can arrive from both paths; everything funnels through an upsert
// keyed by message id so duplicates collapse instead of appending.
type Conversation struct {
	Key string

	mu    sync.Mutex
	msgs  []Message // ascending by CreatedAt, ties broken by id
	index map[string]int
}

func NewConversation(key string) *Conversation {
	return &Conversation{
		Key:   key,
		index: make(map[string]int),
	}
}

// Messages returns a copy of the ordered view.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of messages in the view.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// Get returns the message with the given id, if present.
func (c *Conversation) Get(id string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return Message{}, false
	}
	return c.msgs[i], true
}

// ApplySnapshot merges a fetched snapshot into the view. Messages already
// known (e.g. received live while the fetch was in flight) are merged, not
// duplicated.
func (c *Conversation) ApplySnapshot(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range msgs {
		c.upsertLocked(msgs[i])
	}
}

// ApplyNew inserts a live message. Returns false when the id was already
// present and the event was merged as a duplicate.
func (c *Conversation) ApplyNew(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, known := c.index[msg.ID]
	c.upsertLocked(msg)
	return !known
}

// ApplyMutation merges a status/reaction/edit/delete update into an existing
// entry. Updates for ids outside the loaded window are dropped; the next
// snapshot fetch carries their state anyway.
func (c *Conversation) ApplyMutation(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, known := c.index[msg.ID]; !known {
		return false
	}
	c.upsertLocked(msg)
	return true
}

func (c *Conversation) upsertLocked(incoming Message) {
	if incoming.ID == "" {
		return
	}
	if i, ok := c.index[incoming.ID]; ok {
		c.msgs[i] = mergeMessage(c.msgs[i], incoming)
		return
	}
	c.insertLocked(incoming)
}

// insertLocked places the message at its ordered position.
func (c *Conversation) insertLocked(msg Message) {
	pos := len(c.msgs)
	for pos > 0 {
		prev := c.msgs[pos-1]
		if prev.CreatedAt.Before(msg.CreatedAt) ||
			(prev.CreatedAt.Equal(msg.CreatedAt) && prev.ID <= msg.ID) {
			break
		}
		pos--
	}

	c.msgs = append(c.msgs, Message{})
	copy(c.msgs[pos+1:], c.msgs[pos:])
	c.msgs[pos] = msg

	for i := pos; i < len(c.msgs); i++ {
		c.index[c.msgs[i].ID] = i
	}
}

// mergeMessage reconciles two observations of the same message. Lifecycle
// flags are monotonic: delivered/seen/edited/deleted never regress no matter
// which path delivered the staler copy, and a tombstone always wins over
// content.
func mergeMessage(existing, incoming Message) Message {
	out := incoming

	if existing.IsDelivered && !out.IsDelivered {
		out.IsDelivered = true
		out.DeliveredAt = existing.DeliveredAt
	}
	if existing.IsSeen && !out.IsSeen {
		out.IsSeen = true
		out.SeenAt = existing.SeenAt
	}
	if out.IsSeen {
		out.IsDelivered = true
	}
	if existing.Edited {
		out.Edited = true
	}
	if existing.Deleted && !out.Deleted {
		out.Deleted = true
	}
	if out.Deleted {
		out.Content = DeletedPlaceholder
		out.MediaURL = ""
	}
	return out
}
