package engine

import "strings"

type Phase string

const (
	PhaseLobby Phase = "LOBBY"
	PhaseDay1  Phase = "DAY_1"
	PhaseNight Phase = "NIGHT"
	PhaseDay   Phase = "DAY"
)

// Player is one roster entry for the running round. The roster is captured
// at start; members joining later are spectators and never appear here.
type Player struct {
	Name     string // display name
	Role     Role
	Alive    bool
	HasVoted bool
	VotedFor string // roster key of the current vote target, "" if none
	Skipped  bool
}

type Rules struct {
	MinPlayers int
	MaxPlayers int
	DaySeconds int
}

func DefaultRules() Rules {
	return Rules{MinPlayers: 5, MaxPlayers: 20, DaySeconds: 60}
}

type State struct {
	Phase   Phase
	Round   int
	Players map[string]*Player // keyed by lowercase name
	Order   []string           // roster keys in join order

	// Night bookkeeping, reset every night. The Don's kill and sheriff-check
	// share one acted flag: one action per night, never both.
	DonActed     bool
	SheriffActed bool
	KillTarget   string // roster key, "" when no kill is pending

	// Day bookkeeping, reset every dawn.
	Votes     map[string]int  // target key -> tally
	SkipVotes map[string]bool // voter key -> cast a skip

	// The Sheriff's private findings, kept for the whole round.
	Discoveries map[string]Faction // target key -> faction

	Rules Rules
}

func NewState(rules Rules) State {
	return State{
		Phase:       PhaseLobby,
		Players:     map[string]*Player{},
		Votes:       map[string]int{},
		SkipVotes:   map[string]bool{},
		Discoveries: map[string]Faction{},
		Rules:       rules,
	}
}

type CommandType string

const (
	CmdStartGame    CommandType = "StartGame"
	CmdEndDay       CommandType = "EndDay"
	CmdKill         CommandType = "Kill"
	CmdCheckSheriff CommandType = "CheckSheriff"
	CmdInvestigate  CommandType = "Investigate"
	CmdVote         CommandType = "Vote"
	CmdSkip         CommandType = "Skip"
	CmdTimeout      CommandType = "TimeoutAdvance"
	CmdForfeit      CommandType = "Forfeit"
)

type Command struct {
	Type   CommandType
	Actor  string   // display name of the issuing player ("" for timers)
	Target string   // display name argument, if any
	Roster []string // StartGame only: non-spectator display names
	Phase  Phase    // TimeoutAdvance only: the phase the timer was armed for
}

type EventType string

const (
	EvtRolesAssigned EventType = "RolesAssigned"
	EvtGameStarted   EventType = "GameStarted"
	EvtPhaseChanged  EventType = "PhaseChanged"
	EvtTimerStarted  EventType = "TimerStarted"
	EvtTimerStopped  EventType = "TimerStopped"
	EvtKillMarked    EventType = "KillMarked"
	EvtSheriffCheck  EventType = "SheriffChecked"
	EvtInvestigated  EventType = "Investigated"
	EvtEliminated    EventType = "Eliminated"
	EvtPeacefulNight EventType = "PeacefulNight"
	EvtVoteCast      EventType = "VoteCast"
	EvtVotesReset    EventType = "VotesReset"
	EvtNoElimination EventType = "NoElimination"
	EvtGameOver      EventType = "GameOver"
)

type ElimCause string

const (
	CauseVote         ElimCause = "vote"
	CauseNightKill    ElimCause = "night"
	CauseDisconnected ElimCause = "disconnected"
)

type RoleGrant struct {
	Player string
	Role   Role
}

type Event struct {
	Type      EventType
	Phase     Phase
	Round     int
	Player    string // subject display name
	Actor     string // issuing display name, where relevant
	Role      Role
	Faction   Faction // GameOver winner, Investigated result
	IsSheriff bool    // SheriffChecked result
	Grants    []RoleGrant
	Seconds   int
	Cause     ElimCause
}

func Key(name string) string { return strings.ToLower(name) }

// FindPlayer resolves a display name to its roster entry, case-insensitively.
func (s State) FindPlayer(name string) (*Player, bool) {
	p, ok := s.Players[Key(name)]
	return p, ok
}

func (s State) aliveMafia() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive && p.Role.Faction() == FactionMafia {
			n++
		}
	}
	return n
}

func (s State) aliveTown() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive && p.Role.Faction() == FactionTown {
			n++
		}
	}
	return n
}

// AliveCount reports living roster members.
func (s State) AliveCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

func (s State) roleHolder(role Role) *Player {
	for _, p := range s.Players {
		if p.Role == role {
			return p
		}
	}
	return nil
}

// Apply is the single transition function: it validates cmd against the
// current phase, mutates the round state and returns the outbound events in
// the order they should be announced. On error the state is unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdStartGame:
		return applyStart(s, cmd)
	case CmdEndDay:
		if s.Phase != PhaseDay1 {
			return nil, s, ErrWrongPhase
		}
		events := s.enterNight()
		return events, s, nil
	case CmdKill:
		return applyKill(s, cmd)
	case CmdCheckSheriff:
		return applyCheckSheriff(s, cmd)
	case CmdInvestigate:
		return applyInvestigate(s, cmd)
	case CmdVote:
		return applyVote(s, cmd)
	case CmdSkip:
		return applySkip(s, cmd)
	case CmdTimeout:
		return applyTimeout(s, cmd)
	case CmdForfeit:
		return applyForfeit(s, cmd)
	default:
		return nil, s, ErrUnknownCommand
	}
}

func applyStart(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseLobby {
		return nil, s, ErrGameInProgress
	}
	if len(cmd.Roster) < s.Rules.MinPlayers {
		return nil, s, ErrNotEnoughPlayers
	}
	if len(cmd.Roster) > s.Rules.MaxPlayers {
		return nil, s, ErrTooManyPlayers
	}

	grants := dealRoles(cmd.Roster)

	s.Players = make(map[string]*Player, len(grants))
	s.Order = nil
	for _, name := range cmd.Roster {
		k := Key(name)
		s.Players[k] = &Player{Name: name, Alive: true}
		s.Order = append(s.Order, k)
	}
	for _, g := range grants {
		s.Players[Key(g.Player)].Role = g.Role
	}

	s.Round = 1
	s.Phase = PhaseDay1
	s.DonActed, s.SheriffActed, s.KillTarget = false, false, ""
	s.Votes = map[string]int{}
	s.SkipVotes = map[string]bool{}
	s.Discoveries = map[string]Faction{}

	events := []Event{
		{Type: EvtRolesAssigned, Grants: grants},
		{Type: EvtGameStarted},
		{Type: EvtPhaseChanged, Phase: PhaseDay1, Round: s.Round},
		{Type: EvtTimerStarted, Seconds: s.Rules.DaySeconds},
	}
	return events, s, nil
}

// enterNight mutates s in place and returns the transition events. A night
// with no living actionable role resolves on entry, so the game never waits
// for an action nobody can take.
func (s *State) enterNight() []Event {
	s.Round++
	s.Phase = PhaseNight
	s.DonActed, s.SheriffActed, s.KillTarget = false, false, ""
	events := []Event{
		{Type: EvtTimerStopped},
		{Type: EvtPhaseChanged, Phase: PhaseNight, Round: s.Round},
	}
	return append(events, s.maybeResolveNight()...)
}

func (s State) nightActor(cmd Command, role Role) (*Player, error) {
	if s.Phase != PhaseNight {
		return nil, ErrWrongPhase
	}
	actor, ok := s.FindPlayer(cmd.Actor)
	if !ok || actor.Role != role {
		return nil, ErrNotYourRole
	}
	if !actor.Alive {
		return nil, ErrDeadActor
	}
	return actor, nil
}

func applyKill(s State, cmd Command) ([]Event, State, error) {
	if _, err := s.nightActor(cmd, RoleDon); err != nil {
		return nil, s, err
	}
	if s.DonActed {
		return nil, s, ErrAlreadyActed
	}
	target, ok := s.FindPlayer(cmd.Target)
	if !ok {
		return nil, s, ErrTargetNotFound
	}
	if !target.Alive {
		return nil, s, ErrTargetDead
	}
	if target.Role.Faction() == FactionMafia {
		return nil, s, ErrTargetMafia
	}

	s.DonActed = true
	s.KillTarget = Key(cmd.Target)
	events := []Event{{Type: EvtKillMarked, Player: target.Name, Actor: cmd.Actor}}
	events = append(events, s.maybeResolveNight()...)
	return events, s, nil
}

func applyCheckSheriff(s State, cmd Command) ([]Event, State, error) {
	if _, err := s.nightActor(cmd, RoleDon); err != nil {
		return nil, s, err
	}
	if s.DonActed {
		return nil, s, ErrAlreadyActed
	}
	target, ok := s.FindPlayer(cmd.Target)
	if !ok {
		return nil, s, ErrTargetNotFound
	}
	if !target.Alive {
		return nil, s, ErrTargetDead
	}

	s.DonActed = true
	events := []Event{{
		Type:      EvtSheriffCheck,
		Player:    target.Name,
		Actor:     cmd.Actor,
		IsSheriff: target.Role == RoleSheriff,
	}}
	events = append(events, s.maybeResolveNight()...)
	return events, s, nil
}

func applyInvestigate(s State, cmd Command) ([]Event, State, error) {
	if _, err := s.nightActor(cmd, RoleSheriff); err != nil {
		return nil, s, err
	}
	if s.SheriffActed {
		return nil, s, ErrAlreadyActed
	}
	target, ok := s.FindPlayer(cmd.Target)
	if !ok {
		return nil, s, ErrTargetNotFound
	}
	if !target.Alive {
		return nil, s, ErrTargetDead
	}

	s.SheriffActed = true
	s.Discoveries[Key(cmd.Target)] = target.Role.Faction()
	events := []Event{{
		Type:    EvtInvestigated,
		Player:  target.Name,
		Actor:   cmd.Actor,
		Faction: target.Role.Faction(),
	}}
	events = append(events, s.maybeResolveNight()...)
	return events, s, nil
}

// maybeResolveNight ends the night once every living actionable role has
// acted; a dead or absent role is vacuously ready.
func (s *State) maybeResolveNight() []Event {
	don := s.roleHolder(RoleDon)
	sheriff := s.roleHolder(RoleSheriff)
	donReady := s.DonActed || don == nil || !don.Alive
	sheriffReady := s.SheriffActed || sheriff == nil || !sheriff.Alive
	if !donReady || !sheriffReady {
		return nil
	}
	return s.resolveNight()
}

func (s *State) resolveNight() []Event {
	var events []Event

	if victim, ok := s.Players[s.KillTarget]; ok && victim.Alive {
		victim.Alive = false
		events = append(events, Event{
			Type: EvtEliminated, Player: victim.Name, Role: victim.Role, Cause: CauseNightKill,
		})
		if over := s.checkVictory(); over != nil {
			return append(events, over...)
		}
	} else {
		events = append(events, Event{Type: EvtPeacefulNight})
	}

	s.Round++
	s.Phase = PhaseDay
	s.Votes = map[string]int{}
	s.SkipVotes = map[string]bool{}
	for _, p := range s.Players {
		p.HasVoted, p.VotedFor, p.Skipped = false, "", false
	}
	events = append(events,
		Event{Type: EvtVotesReset},
		Event{Type: EvtPhaseChanged, Phase: PhaseDay, Round: s.Round},
		Event{Type: EvtTimerStarted, Seconds: s.Rules.DaySeconds},
	)
	return events
}

func (s *State) retractVote(voter *Player) {
	if !voter.HasVoted {
		return
	}
	if voter.Skipped {
		delete(s.SkipVotes, Key(voter.Name))
	} else if s.Votes[voter.VotedFor] > 0 {
		s.Votes[voter.VotedFor]--
		if s.Votes[voter.VotedFor] == 0 {
			delete(s.Votes, voter.VotedFor)
		}
	}
	voter.HasVoted, voter.VotedFor, voter.Skipped = false, "", false
}

func applyVote(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseDay {
		return nil, s, ErrWrongPhase
	}
	voter, ok := s.FindPlayer(cmd.Actor)
	if !ok {
		return nil, s, ErrNotYourRole
	}
	if !voter.Alive {
		return nil, s, ErrDeadActor
	}
	target, ok := s.FindPlayer(cmd.Target)
	if !ok {
		return nil, s, ErrTargetNotFound
	}
	if !target.Alive {
		return nil, s, ErrTargetDead
	}

	// A repeat vote replaces the previous one, never double-counts.
	s.retractVote(voter)
	s.Votes[Key(cmd.Target)]++
	voter.HasVoted = true
	voter.VotedFor = Key(cmd.Target)

	events := []Event{{Type: EvtVoteCast, Actor: voter.Name, Player: target.Name}}
	events = append(events, s.maybeResolveDay()...)
	return events, s, nil
}

func applySkip(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseDay {
		return nil, s, ErrWrongPhase
	}
	voter, ok := s.FindPlayer(cmd.Actor)
	if !ok {
		return nil, s, ErrNotYourRole
	}
	if !voter.Alive {
		return nil, s, ErrDeadActor
	}

	s.retractVote(voter)
	s.SkipVotes[Key(voter.Name)] = true
	voter.HasVoted = true
	voter.Skipped = true

	events := []Event{{Type: EvtVoteCast, Actor: voter.Name}}
	events = append(events, s.maybeResolveDay()...)
	return events, s, nil
}

// maybeResolveDay resolves instantly once every living roster member has a
// vote or skip on record.
func (s *State) maybeResolveDay() []Event {
	for _, p := range s.Players {
		if p.Alive && !p.HasVoted {
			return nil
		}
	}
	return s.resolveDay()
}

// resolveDay applies the plurality rule: the single highest tally among named
// targets wins, unless it is tied with another name or the skip tally reaches
// it, in which case nobody is eliminated.
func (s *State) resolveDay() []Event {
	var events []Event

	top, max, leaders := "", 0, 0
	for target, n := range s.Votes {
		switch {
		case n > max:
			top, max, leaders = target, n, 1
		case n == max:
			leaders++
		}
	}
	tie := leaders != 1 || len(s.SkipVotes) >= max

	if max == 0 || tie {
		events = append(events, Event{Type: EvtNoElimination})
	} else if victim, ok := s.Players[top]; ok && victim.Alive {
		victim.Alive = false
		events = append(events, Event{
			Type: EvtEliminated, Player: victim.Name, Role: victim.Role, Cause: CauseVote,
		})
		if over := s.checkVictory(); over != nil {
			return append(events, over...)
		}
	}

	events = append(events, s.enterNight()...)
	return events
}

func applyTimeout(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != cmd.Phase {
		return nil, s, ErrStaleTimer
	}
	switch s.Phase {
	case PhaseDay1:
		events := s.enterNight()
		return events, s, nil
	case PhaseDay:
		events := s.resolveDay()
		return events, s, nil
	default:
		return nil, s, ErrStaleTimer
	}
}

// applyForfeit eliminates a living roster member who left mid-round. It is a
// no-op for unknown or already-dead names so disconnect cleanup stays
// idempotent.
func applyForfeit(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseLobby {
		return nil, s, nil
	}
	victim, ok := s.FindPlayer(cmd.Actor)
	if !ok || !victim.Alive {
		return nil, s, nil
	}

	victim.Alive = false
	s.retractVote(victim)
	k := Key(victim.Name)
	if s.Votes[k] > 0 {
		// Votes cast for the leaver evaporate; let those voters vote again.
		delete(s.Votes, k)
		for _, p := range s.Players {
			if p.VotedFor == k {
				p.HasVoted, p.VotedFor = false, ""
			}
		}
	}
	if s.KillTarget == k {
		s.KillTarget = ""
	}

	events := []Event{{
		Type: EvtEliminated, Player: victim.Name, Role: victim.Role, Cause: CauseDisconnected,
	}}
	if over := s.checkVictory(); over != nil {
		return append(events, over...), s, nil
	}

	switch s.Phase {
	case PhaseNight:
		events = append(events, s.maybeResolveNight()...)
	case PhaseDay:
		events = append(events, s.maybeResolveDay()...)
	}
	return events, s, nil
}

// checkVictory returns the game-over events when a faction has won, resetting
// the state to a fresh lobby, or nil when play continues.
func (s *State) checkVictory() []Event {
	mafia, town := s.aliveMafia(), s.aliveTown()
	var winner Faction
	switch {
	case mafia == 0:
		winner = FactionTown
	case mafia >= town:
		winner = FactionMafia
	default:
		return nil
	}

	*s = NewState(s.Rules)
	return []Event{
		{Type: EvtTimerStopped},
		{Type: EvtGameOver, Faction: winner},
	}
}
