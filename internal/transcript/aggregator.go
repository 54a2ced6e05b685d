package transcript

import (
	"sync"

	"github.com/gmarchetti/aria/internal/protocol"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one transcript row, ordered by arrival. Interim rows are kept
// as-is: a later finalized message for the same utterance becomes a new
// row, never a replacement.
type Entry struct {
	Role       Role   `json:"role"`
	Text       string `json:"text"`
	Interim    bool   `json:"interim"`
	TopEmotion string `json:"top_emotion,omitempty"`
}

// Aggregator derives an ordered role-tagged transcript and a ranked
// emotion summary from the inbound event stream. It never blocks: all
// work is an in-memory append.
type Aggregator struct {
	mu          sync.Mutex
	entries     []Entry
	lastProsody protocol.ProsodyScores
}

func New() *Aggregator {
	return &Aggregator{}
}

// OnEvent consumes one inbound event. Only user and assistant messages
// produce transcript rows; assistant_prosody refreshes the emotion summary.
func (a *Aggregator) OnEvent(evt any) {
	switch m := evt.(type) {
	case protocol.UserMessage:
		a.append(Entry{
			Role:       RoleUser,
			Text:       m.Text,
			Interim:    m.Interim,
			TopEmotion: topEmotion(m.Prosody),
		})
	case protocol.AssistantMessage:
		a.append(Entry{
			Role:       RoleAssistant,
			Text:       m.Text,
			TopEmotion: topEmotion(m.Prosody),
		})
	case protocol.AssistantProsody:
		a.mu.Lock()
		a.lastProsody = m.Scores
		a.mu.Unlock()
	}
}

func (a *Aggregator) append(e Entry) {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

// Snapshot returns the transcript in arrival order. The read is
// restartable: it copies, never consumes.
func (a *Aggregator) Snapshot() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// TopEmotions ranks the most recent assistant_prosody scores, descending,
// ties kept in original key order. n defaults to 5.
func (a *Aggregator) TopEmotions(n int) []protocol.EmotionScore {
	if n <= 0 {
		n = 5
	}
	a.mu.Lock()
	scores := a.lastProsody
	a.mu.Unlock()
	return scores.TopN(n)
}

// Reset drops all accumulated state; called when a new session starts.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.entries = nil
	a.lastProsody = nil
	a.mu.Unlock()
}

func topEmotion(scores protocol.ProsodyScores) string {
	top, ok := scores.Top()
	if !ok {
		return ""
	}
	return top.Name
}
