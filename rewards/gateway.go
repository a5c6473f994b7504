package rewards

import (
	"context"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/twitchapi"
)

// TwitchGateway adapts the Helix client to the engine's platform port.
type TwitchGateway struct {
	Client *twitchapi.Client
}

func (g *TwitchGateway) SetRewardEnabled(ctx context.Context, rewardID string, enabled bool) error {
	return g.Client.UpdateCustomReward(ctx, rewardID, enabled)
}

func (g *TwitchGateway) RefundRedemption(ctx context.Context, rewardID, redemptionID string) error {
	return g.Client.UpdateRedemptionStatus(ctx, rewardID, redemptionID, "CANCELED")
}

func (g *TwitchGateway) PredictionOutcomes(ctx context.Context, predictionID string) ([]game.Outcome, error) {
	p, err := g.Client.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	out := make([]game.Outcome, 0, len(p.Outcomes))
	for _, o := range p.Outcomes {
		oc := game.Outcome{ID: o.ID, Title: o.Title}
		for _, tp := range o.TopPredictors {
			oc.Predictors = append(oc.Predictors, game.Predictor{UserID: tp.UserID, UserName: tp.UserName})
		}
		out = append(out, oc)
	}
	return out, nil
}
