package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// interviewSession is the server-side record of one running interview.
type interviewSession struct {
	ID        string
	Kind      string
	UserID    string
	UserName  string
	Questions []string
	Asked     int // 1-based index of the question currently on the table
	Responses int
	Scores    []float64
	CreatedAt time.Time
	Completed bool
}

// Store keeps sessions in memory. Good enough for a development fixture.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*interviewSession
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*interviewSession)}
}

func (s *Store) Create(kind, userID, userName string, questions []string) *interviewSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &interviewSession{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		UserName:  userName,
		Questions: questions,
		Asked:     1,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the session and a lock release. Callers must call release
// when done mutating.
func (s *Store) Get(id string) (*interviewSession, func(), bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, false
	}
	return sess, s.mu.Unlock, true
}

// Delete removes the session, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}
