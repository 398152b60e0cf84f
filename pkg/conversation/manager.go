package conversation

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by operations that reference a conversation id the
// session does not hold.
var ErrNotFound = errors.New("conversation not found")

// NewState builds a session state seeded with one default conversation, which
// becomes active.
func NewState() *State {
	s := &State{
		Conversations: make(map[string]*Conversation),
	}
	c := s.newConversation(DefaultName)
	c.LastMessage = GreetingPreview
	s.ActiveID = c.ID
	return s
}

func (s *State) newConversation(name string) *Conversation {
	if name == "" {
		name = DefaultName
	}
	now := time.Now()
	c := &Conversation{
		ID:          uuid.NewString(),
		Name:        name,
		Turns:       []Turn{},
		CreatedAt:   now,
		LastUpdated: now,
		LastMessage: StartedPreview,
	}
	s.Conversations[c.ID] = c
	return c
}

// Normalize repairs a state whose active id no longer refers to a held
// conversation: the first remaining conversation is substituted, or a fresh
// default when none remain. States decoded from the session store pass through
// here before use.
func (s *State) Normalize() {
	if s.Conversations == nil {
		s.Conversations = make(map[string]*Conversation)
	}
	for id, c := range s.Conversations {
		if c.ID == "" {
			c.ID = id
		}
	}
	if _, ok := s.Conversations[s.ActiveID]; ok {
		return
	}
	for id := range s.Conversations {
		s.ActiveID = id
		return
	}
	// Not first contact: the greeting preview belongs to NewState only.
	c := s.newConversation(DefaultName)
	s.ActiveID = c.ID
}

// Active returns the currently active conversation, self-healing first.
func (s *State) Active() *Conversation {
	s.Normalize()
	return s.Conversations[s.ActiveID]
}

// Create adds a new empty conversation and makes it active.
func (s *State) Create(name string) *Conversation {
	c := s.newConversation(name)
	s.ActiveID = c.ID
	return c
}

// Switch makes the given conversation active and returns it. An unknown id is
// not an error: an empty conversation is created under that id and activated.
// This mirrors the historical behavior of the web frontend, which may switch to
// an id the server has already expired.
func (s *State) Switch(id string) *Conversation {
	c, ok := s.Conversations[id]
	if !ok {
		now := time.Now()
		c = &Conversation{
			ID:          id,
			Name:        DefaultName,
			Turns:       []Turn{},
			CreatedAt:   now,
			LastUpdated: now,
			LastMessage: StartedPreview,
		}
		s.Conversations[id] = c
	}
	s.ActiveID = id
	return c
}

// Delete removes a conversation. When the active conversation is deleted the
// active id moves to any remaining conversation, or to a newly created default
// when none remain.
func (s *State) Delete(id string) error {
	if _, ok := s.Conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.Conversations, id)
	if s.ActiveID == id {
		s.ActiveID = ""
		s.Normalize()
	}
	return nil
}

// ToggleStar flips the starred flag and returns the new value.
func (s *State) ToggleStar(id string) (bool, error) {
	c, ok := s.Conversations[id]
	if !ok {
		return false, ErrNotFound
	}
	c.Starred = !c.Starred
	c.LastUpdated = time.Now()
	return c.Starred, nil
}

// Clear empties the turns of a conversation without deleting it.
func (s *State) Clear(id string) error {
	c, ok := s.Conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.Turns = []Turn{}
	c.LastMessage = ClearedPreview
	c.LastUpdated = time.Now()
	return nil
}

// List returns conversation summaries sorted starred-first, then most recently
// updated first.
func (s *State) List() []Summary {
	out := make([]Summary, 0, len(s.Conversations))
	for id, c := range s.Conversations {
		out = append(out, Summary{
			ID:           id,
			Name:         c.Name,
			LastMessage:  c.LastMessage,
			Starred:      c.Starred,
			CreatedAt:    c.CreatedAt,
			LastUpdated:  c.LastUpdated,
			MessageCount: len(c.Turns) / 2,
			IsCurrent:    id == s.ActiveID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Starred != out[j].Starred {
			return out[i].Starred
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}

// AppendExchange records one completed user/assistant exchange on a
// conversation, names it from the first user message, refreshes the preview,
// and trims the history to the trailing MaxTurns entries.
func (s *State) AppendExchange(id, userMsg, reply string) error {
	c, ok := s.Conversations[id]
	if !ok {
		return ErrNotFound
	}
	ts := time.Now().Format("15:04")
	first := len(c.Turns) == 0
	c.Turns = append(c.Turns,
		Turn{Role: RoleUser, Content: userMsg, Timestamp: ts},
		Turn{Role: RoleAssistant, Content: reply, Timestamp: ts},
	)
	if len(c.Turns) > MaxTurns {
		c.Turns = c.Turns[len(c.Turns)-MaxTurns:]
	}
	if first {
		c.Name = truncateRunes(userMsg, namePreviewRunes)
	}
	c.LastMessage = truncateRunes(userMsg, messagePreviewRunes)
	c.LastUpdated = time.Now()
	return nil
}

// Window returns the trailing history of a conversation capped at MaxTurns,
// ready to be sent upstream.
func (c *Conversation) Window() []Turn {
	if len(c.Turns) <= MaxTurns {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-MaxTurns:]
}
