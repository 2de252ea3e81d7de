package main

// CommendationDef describes an award a player can earn in a single match.
type CommendationDef struct {
	ID          string
	Name        string
	Description string
}

const aceKills = 10

var Commendations = []CommendationDef{
	{"first_blood", "First Blood", "Destroy at least one enemy"},
	{"ace", "Ace Pilot", "Destroy 10 enemies in one match"},
	{"top_gun", "Top Gun", "Most kills in the squad"},
	{"untouchable", "Untouchable", "Win without taking damage"},
	{"scavenger", "Scavenger", "Collect three or more power-ups"},
	{"last_stand", "Last Stand", "Sole survivor of a victory"},
}

// AwardCommendations fills in the Awards of every player in rec. Abandoned
// and failed matches earn nothing.
func AwardCommendations(rec *MatchRecord) {
	if rec.Outcome != OutcomeVictory.String() && rec.Outcome != OutcomeDefeat.String() {
		return
	}
	won := rec.Outcome == OutcomeVictory.String()

	bestKills, survivors := 0, 0
	for _, p := range rec.Players {
		bestKills = max(bestKills, p.Stats.Kills)
		if p.Survived {
			survivors++
		}
	}
	topCount := 0
	for _, p := range rec.Players {
		if bestKills > 0 && p.Stats.Kills == bestKills {
			topCount++
		}
	}

	for i := range rec.Players {
		p := &rec.Players[i]
		check := func(id string) bool {
			switch id {
			case "first_blood":
				return p.Stats.Kills >= 1
			case "ace":
				return p.Stats.Kills >= aceKills
			case "top_gun":
				// Ties share nothing.
				return len(rec.Players) > 1 && topCount == 1 && p.Stats.Kills == bestKills
			case "untouchable":
				return won && p.Stats.DamageTaken == 0
			case "scavenger":
				return p.Stats.Pickups >= 3
			case "last_stand":
				return won && p.Survived && survivors == 1 && len(rec.Players) > 1
			}
			return false
		}
		p.Awards = p.Awards[:0]
		for _, def := range Commendations {
			if check(def.ID) {
				p.Awards = append(p.Awards, def.ID)
			}
		}
	}
}
