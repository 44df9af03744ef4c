package email

import "time"

var saoPaulo = loadLocation("America/Sao_Paulo")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}
