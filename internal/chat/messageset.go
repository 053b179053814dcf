package chat

import (
	"sort"

	"github.com/MetaFacil/AppConecta/internal/model"
)

// messageSet is the in-memory ordered message set of one conversation: keyed
// by id, totally ordered by (created_at, id) ascending. The sort order is the
// sole source of truth; transport arrival order is never trusted. Not
// goroutine-safe; the owning reconciler serializes access.
type messageSet struct {
	msgs []model.Message
	pos  map[string]int
}

func newMessageSet() *messageSet {
	return &messageSet{pos: make(map[string]int)}
}

func (s *messageSet) len() int { return len(s.msgs) }

func (s *messageSet) get(id string) (model.Message, bool) {
	i, ok := s.pos[id]
	if !ok {
		return model.Message{}, false
	}
	return s.msgs[i], true
}

// upsert inserts or replaces the message keyed by m.ID, keeping the set
// ordered. The read flag merges monotonically: once lida=true it never flips
// back, whatever the incoming row says. Reports whether the set changed, so
// re-applying the same event is a detectable no-op.
func (s *messageSet) upsert(m model.Message) bool {
	if i, ok := s.pos[m.ID]; ok {
		old := s.msgs[i]
		if old.Lida {
			m.Lida = true
		}
		if sameMessage(old, m) {
			return false
		}
		if old.CreatedAt.Equal(m.CreatedAt) {
			s.msgs[i] = m
			return true
		}
		// Timestamp changed (optimistic local clock vs store clock): reposition.
		s.removeAt(i)
	}
	at := sort.Search(len(s.msgs), func(i int) bool { return m.Less(s.msgs[i]) })
	s.msgs = append(s.msgs, model.Message{})
	copy(s.msgs[at+1:], s.msgs[at:])
	s.msgs[at] = m
	for i := at; i < len(s.msgs); i++ {
		s.pos[s.msgs[i].ID] = i
	}
	return true
}

func (s *messageSet) remove(id string) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	s.removeAt(i)
	return true
}

func (s *messageSet) removeAt(i int) {
	delete(s.pos, s.msgs[i].ID)
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	for j := i; j < len(s.msgs); j++ {
		s.pos[s.msgs[j].ID] = j
	}
}

// sameMessage compares field by field: MediaURL by value, timestamps with
// Equal (plain == is unreliable for time.Time and pointers).
func sameMessage(a, b model.Message) bool {
	au, bu := "", ""
	if a.MediaURL != nil {
		au = *a.MediaURL
	}
	if b.MediaURL != nil {
		bu = *b.MediaURL
	}
	return a.ID == b.ID && a.ChatID == b.ChatID && a.SenderID == b.SenderID &&
		a.Conteudo == b.Conteudo && a.MessageType == b.MessageType && au == bu &&
		a.Lida == b.Lida && a.CreatedAt.Equal(b.CreatedAt) &&
		a.Pending == b.Pending && a.Failed == b.Failed
}

// snapshot returns an ascending copy. Presentation-layer reversal (most
// recent first) is left to the consumer.
func (s *messageSet) snapshot() []model.Message {
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}
