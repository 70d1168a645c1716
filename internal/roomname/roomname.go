// Package roomname makes short memorable room names such as
// "cozy-otter-ramen" for `huddle chat` when no room is given.
package roomname

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "bright", "gentle", "brave", "calm", "swift", "bouncy",
}

var animals = []string{
	"kitten", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster", "beaver", "narwhal",
	"penguin", "flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "dolphin", "raccoon", "ferret",
}

var dishes = []string{
	"pancake", "waffle", "sushi", "ramen", "curry", "taco", "biryani", "paella", "risotto", "dumpling",
	"noodle", "omelette", "kebab", "fondue", "pierogi", "gnocchi", "falafel", "samosa", "poutine", "dimsum",
}

// New returns a name built from an adjective, an animal and a dish.
func New() (string, error) {
	return build(adjectives, animals, dishes)
}

func build(lists ...[]string) (string, error) {
	words := make([]string, len(lists))
	for i, list := range lists {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
		if err != nil {
			return "", fmt.Errorf("generate room name: %w", err)
		}
		words[i] = list[n.Int64()]
	}
	return strings.Join(words, "-"), nil
}
