package event

// Debate lifecycle events published by the engine.
const (
	ArgumentSubmittedType EventType = "argument.submitted"
	VoteCastType          EventType = "vote.cast"
	DebateResolvedType    EventType = "debate.resolved"
	DebateStartedType     EventType = "debate.started"
)

type ArgumentSubmitted struct {
	DebateID   string
	ArgumentID string
	UserID     string
	Side       string
	Round      int
}

// VoteCast carries the tally after the vote. Recipient is the participant
// on the voted side, nil when that side is unassigned.
type VoteCast struct {
	DebateID  string
	Title     string
	VoterID   string
	Side      string
	VotesA    int
	VotesB    int
	Recipient *string
}

// DebateResolved is published once per debate. Winner and Loser are nil on
// a tie.
type DebateResolved struct {
	DebateID string
	Title    string
	Winner   *string
	Loser    *string
	VotesA   int
	VotesB   int
}

type DebateStarted struct {
	DebateID     string
	Title        string
	Participants []string
}
