package system

import (
	"math/rand"
	"strconv"
)

var adjectives = []string{
	"steady",
	"rapid",
	"amber",
	"cobalt",
	"crimson",
	"silver",
	"granite",
	"copper",
	"bright",
	"quiet",
	"sturdy",
	"nimble",
}

var nouns = []string{
	"station",
	"tablet",
	"kiosk",
	"console",
	"terminal",
	"panel",
	"bench",
	"cart",
}

// GenerateDeviceLabel makes a human readable label for a device that has
// not been given one, e.g. "amber-kiosk-412". Labels only need to be
// readable on a conflict banner, not unique.
func GenerateDeviceLabel() string {
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	number := rand.Intn(900) + 100 // generates a random 3 digit number
	return adj + "-" + noun + "-" + strconv.Itoa(number)
}
