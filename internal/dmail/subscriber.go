package dmail

import "fmt"

// EventNewMessage is the push event carrying an inbound Message.
const EventNewMessage = "newMessage"

const (
	notificationTitle = "New Message"
	defaultAvatar     = "/avatar.png"
)

type subscriptionState int

const (
	// SubscriptionIdle: no handler registered with the push channel.
	SubscriptionIdle subscriptionState = iota
	// SubscriptionActive: exactly one handler registered.
	SubscriptionActive
)

func (s subscriptionState) String() string {
	switch s {
	case SubscriptionActive:
		return "active"
	default:
		return "idle"
	}
}

// Subscribe registers the live-event handler. Calling it while already
// subscribed does nothing. It returns false when the Store has no channel.
func (s *Store) Subscribe() bool {
	if s.channel == nil {
		return false
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.Subscribed() {
		return true
	}
	s.channel.On(EventNewMessage, s.HandleEvent)
	s.setSubscription(SubscriptionActive)
	s.logger.Debug().Str("event", EventNewMessage).Msg("subscribed")
	return true
}

// Unsubscribe deregisters the handler. Calling it while idle does nothing.
func (s *Store) Unsubscribe() {
	if s.channel == nil {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if !s.Subscribed() {
		return
	}
	s.channel.Off(EventNewMessage)
	s.setSubscription(SubscriptionIdle)
	s.logger.Debug().Str("event", EventNewMessage).Msg("unsubscribed")
}

func (s *Store) setSubscription(state subscriptionState) {
	s.mu.Lock()
	s.sub = state
	s.mu.Unlock()
}

// Subscribed reports whether the live handler is registered.
func (s *Store) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub == SubscriptionActive
}

// HandleEvent routes one inbound message. Messages without a sender or from
// the local user are dropped; messages from the selected peer are appended to
// the timeline; any other message bumps its sender's unread count and may
// raise a notification.
func (s *Store) HandleEvent(m Message) {
	m.SenderID = normalizeID(m.SenderID)
	if m.SenderID == "" {
		s.logger.Debug().Str("message_id", m.ID).Msg("dropping live message without sender")
		return
	}
	if s.channel != nil && m.SenderID == normalizeID(s.channel.SelfID()) {
		return
	}

	s.mu.Lock()
	if s.dir.isSelected(m.SenderID) {
		s.timeline.append(m)
		s.mu.Unlock()
		s.logger.Debug().Str("sender", m.SenderID).Msg("live message appended")
		s.notifyChange()
		return
	}
	count := s.ledger.Increment(m.SenderID)
	sender, _ := s.dir.lookup(m.SenderID)
	s.mu.Unlock()

	s.logger.Debug().Str("sender", m.SenderID).Int("unread", count).Msg("live message counted")
	s.notifyChange()

	if s.notifier == nil || s.notifier.Permission() != PermissionGranted {
		return
	}
	s.notifier.Notify(newMessageNotification(sender, m))
}

func newMessageNotification(sender Peer, m Message) Notification {
	icon := sender.ProfilePic
	if icon == "" {
		icon = defaultAvatar
	}
	return Notification{
		Title: notificationTitle,
		Body:  fmt.Sprintf("%s: %s", sender.FullName, m.Text),
		Icon:  icon,
	}
}
