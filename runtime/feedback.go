package runtime

import (
	"sync"

	"github.com/coreason/maco/types"
)

var (
	_ types.FeedbackChannel = &FeedbackManager{}
	_ types.FeedbackFuture  = &feedbackFuture{}
)

// feedbackFuture resolves at most once; later SetResult calls are ignored.
type feedbackFuture struct {
	mu    sync.Mutex
	done  chan struct{}
	value any
}

func newFeedbackFuture() *feedbackFuture {
	return &feedbackFuture{done: make(chan struct{})}
}

func (f *feedbackFuture) Done() <-chan struct{} {
	return f.done
}

func (f *feedbackFuture) Value() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *feedbackFuture) resolve(value any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.done:
		return false
	default:
	}
	f.value = value
	close(f.done)
	return true
}

// FeedbackManager routes external approval signals to suspended HUMAN nodes
// by node id. Feedback may arrive before the node starts waiting.
type FeedbackManager struct {
	mu      sync.Mutex
	futures map[string]*feedbackFuture
}

func NewFeedbackManager() *FeedbackManager {
	return &FeedbackManager{futures: make(map[string]*feedbackFuture)}
}

// Create returns the future for nodeID, creating it when absent.
func (m *FeedbackManager) Create(nodeID string) types.FeedbackFuture {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, exists := m.futures[nodeID]; exists {
		return f
	}
	f := newFeedbackFuture()
	m.futures[nodeID] = f
	return f
}

func (m *FeedbackManager) Get(nodeID string) (types.FeedbackFuture, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, exists := m.futures[nodeID]
	return f, exists
}

// SetResult resolves the future for nodeID. Returns false when the future
// was already resolved; the first value wins.
func (m *FeedbackManager) SetResult(nodeID string, value any) bool {
	m.mu.Lock()
	f, exists := m.futures[nodeID]
	if !exists {
		f = newFeedbackFuture()
		m.futures[nodeID] = f
	}
	m.mu.Unlock()

	return f.resolve(value)
}
