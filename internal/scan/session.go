package scan

import (
	"errors"
	"sync"
	"time"
)

// ErrScanInProgress indicates a scan session is already running.
var ErrScanInProgress = errors.New("scan already in progress")

const sessionLogSize = 50

// Event is one entry in the session's rolling log.
type Event struct {
	Time    time.Time `json:"time"`
	Channel string    `json:"channel,omitempty"`
	Message string    `json:"message"`
}

// Snapshot is a frozen view of the session for progress reporting.
type Snapshot struct {
	Active         bool      `json:"active"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
	ChannelsTotal  int       `json:"channels_total"`
	ChannelsDone   int       `json:"channels_done"`
	CurrentChannel string    `json:"current_channel,omitempty"`
	NewPapers      int       `json:"new_papers"`
	Duplicates     int       `json:"duplicates"`
	Quizzes        int       `json:"quizzes"`
	Errors         int       `json:"errors"`
	Log            []Event   `json:"log"`
}

// Session is the process-wide state of one scan run. A single owner drives
// it; any collaborator may read a Snapshot. Counters reset at scan start
// and freeze at scan end.
type Session struct {
	mu sync.Mutex

	active         bool
	startedAt      time.Time
	finishedAt     time.Time
	channelsTotal  int
	channelsDone   int
	currentChannel string
	newPapers      int
	duplicates     int
	quizzes        int
	errors         int
	log            []Event
}

func NewSession() *Session {
	return &Session{}
}

// TryStart claims the session for a new run, resetting all state. Only one
// run may be active at a time.
func (s *Session) TryStart(channelsTotal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrScanInProgress
	}

	s.active = true
	s.startedAt = time.Now()
	s.finishedAt = time.Time{}
	s.channelsTotal = channelsTotal
	s.channelsDone = 0
	s.currentChannel = ""
	s.newPapers = 0
	s.duplicates = 0
	s.quizzes = 0
	s.errors = 0
	s.log = nil

	return nil
}

// End freezes the session.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.finishedAt = time.Now()
	s.currentChannel = ""
}

func (s *Session) StartChannel(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentChannel = username
	s.appendLocked(Event{Time: time.Now(), Channel: username, Message: "scanning"})
}

func (s *Session) FinishChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channelsDone++
}

func (s *Session) AddNewPaper()  { s.inc(&s.newPapers) }
func (s *Session) AddDuplicate() { s.inc(&s.duplicates) }
func (s *Session) AddQuiz()      { s.inc(&s.quizzes) }

func (s *Session) AddError(channel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors++
	s.appendLocked(Event{Time: time.Now(), Channel: channel, Message: message})
}

func (s *Session) Log(channel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(Event{Time: time.Now(), Channel: channel, Message: message})
}

// Snapshot returns a copy safe to serve to readers while a scan runs.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := make([]Event, len(s.log))
	copy(log, s.log)

	return Snapshot{
		Active:         s.active,
		StartedAt:      s.startedAt,
		FinishedAt:     s.finishedAt,
		ChannelsTotal:  s.channelsTotal,
		ChannelsDone:   s.channelsDone,
		CurrentChannel: s.currentChannel,
		NewPapers:      s.newPapers,
		Duplicates:     s.duplicates,
		Quizzes:        s.quizzes,
		Errors:         s.errors,
		Log:            log,
	}
}

func (s *Session) inc(counter *int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	*counter++
}

func (s *Session) appendLocked(e Event) {
	s.log = append(s.log, e)
	if len(s.log) > sessionLogSize {
		s.log = s.log[len(s.log)-sessionLogSize:]
	}
}
