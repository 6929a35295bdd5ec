package engine

import "math/rand"

type Role string

const (
	RoleNone     Role = ""
	RoleDon      Role = "Don"
	RoleMafia    Role = "Mafia"
	RoleSheriff  Role = "Sheriff"
	RoleVillager Role = "Villager"
)

type Faction string

const (
	FactionMafia Faction = "Mafia"
	FactionTown  Faction = "Town"
)

func (r Role) Faction() Faction {
	switch r {
	case RoleDon, RoleMafia:
		return FactionMafia
	default:
		return FactionTown
	}
}

func (r Role) Goal() string {
	switch r {
	case RoleDon:
		return "Lead the mafia. Each night, kill a townsperson or hunt for the Sheriff. Outnumber the town."
	case RoleMafia:
		return "Blend in by day, back your Don by night. Outnumber the town."
	case RoleSheriff:
		return "Investigate one player each night and guide the town to vote out the mafia."
	case RoleVillager:
		return "Find the mafia and vote them out before they outnumber you."
	default:
		return ""
	}
}

// mafiaCount is a quarter of the roster rounded down, never less than one.
func mafiaCount(n int) int {
	c := n / 4
	if c < 1 {
		c = 1
	}
	return c
}

// shuffleRoster is a package variable so tests can pin the deal order.
var shuffleRoster = func(names []string) {
	rand.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})
}

// dealRoles slices a shuffled roster into the role list for one round:
// the first mafiaCount names are the mafia faction (first of them the Don),
// the next name is the Sheriff, everyone else a Villager.
func dealRoles(roster []string) []RoleGrant {
	shuffled := make([]string, len(roster))
	copy(shuffled, roster)
	shuffleRoster(shuffled)

	grants := make([]RoleGrant, 0, len(shuffled))
	mafias := mafiaCount(len(shuffled))
	for i, name := range shuffled {
		var role Role
		switch {
		case i == 0:
			role = RoleDon
		case i < mafias:
			role = RoleMafia
		case i == mafias:
			role = RoleSheriff
		default:
			role = RoleVillager
		}
		grants = append(grants, RoleGrant{Player: name, Role: role})
	}
	return grants
}
