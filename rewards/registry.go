// Package rewards resolves the channel's configured custom rewards to bonus
// categories and adapts the Helix client to the game engine's platform port.
package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/twitchapi"
)

// Registry maps reward ids to bonus categories. It is built once at startup
// from the channel's reward list and is safe for concurrent reads.
type Registry struct {
	byID map[string]game.Category
	ids  []string
}

// BuildRegistry matches configured reward display names (keyed by category)
// against the channel's custom rewards, case-insensitively. Categories with
// no matching reward are skipped with a warning; the reward is simply not
// offered that show.
func BuildRegistry(ctx context.Context, client *twitchapi.Client, names map[string]string) (*Registry, error) {
	rewardList, err := client.ListCustomRewards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom rewards: %w", err)
	}
	r := &Registry{byID: map[string]game.Category{}}
	for key, name := range names {
		cat, ok := categoryForKey(key)
		if !ok {
			return nil, fmt.Errorf("unknown bonus category key %q", key)
		}
		id := findReward(rewardList, name)
		if id == "" {
			slog.Warn("configured reward not found on channel",
				slog.String("category", key), slog.String("name", name))
			continue
		}
		r.byID[id] = cat
		r.ids = append(r.ids, id)
		slog.Info("bound reward", slog.String("category", key),
			slog.String("name", name), slog.String("reward_id", id))
	}
	return r, nil
}

// NewStaticRegistry builds a registry directly from id->category pairs; tests
// and fixed-id deployments use it to skip the Helix lookup.
func NewStaticRegistry(byID map[string]game.Category) *Registry {
	r := &Registry{byID: map[string]game.Category{}}
	for id, cat := range byID {
		r.byID[id] = cat
		r.ids = append(r.ids, id)
	}
	return r
}

func (r *Registry) Lookup(rewardID string) (game.Category, bool) {
	cat, ok := r.byID[rewardID]
	return cat, ok
}

// IDs returns the bound reward ids. The engine toggles these around the
// bonus window.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Size reports how many categories resolved to a live reward.
func (r *Registry) Size() int { return len(r.byID) }

func findReward(list []twitchapi.CustomReward, name string) string {
	for _, rw := range list {
		if strings.EqualFold(strings.TrimSpace(rw.Title), strings.TrimSpace(name)) {
			return rw.ID
		}
	}
	return ""
}

func categoryForKey(key string) (game.Category, bool) {
	switch key {
	case "LEVEL_UP":
		return game.CategoryLevelUp, true
	case "LEVEL_DOWN":
		return game.CategoryLevelDown, true
	case "CHOIX_PERSO":
		return game.CategoryCharSelect, true
	default:
		return "", false
	}
}
