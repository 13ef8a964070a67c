package dmail

// timeline holds the messages of the selected conversation in completion order.
// No timestamp sorting or deduplication is applied.
type timeline struct {
	messages []Message
}

func (t *timeline) replace(messages []Message) {
	t.messages = cloneMessages(messages)
	if t.messages == nil {
		t.messages = []Message{}
	}
}

func (t *timeline) append(m Message) {
	t.messages = append(t.messages, m)
}

func (t *timeline) snapshot() []Message {
	return cloneMessages(t.messages)
}
