package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/units"
)

// MarketCreated builds the alert for a newly indexed market.
func MarketCreated(ev domain.MarketCreated) Alert {
	return Alert{
		Event: EventMarketCreated,
		Title: "New market #" + ev.MarketID.String(),
		Body:  ev.Question,
		Fields: []Field{
			{"Category", ev.Category},
			{"Resolves", time.Unix(int64(ev.ResolutionTime), 0).UTC().Format(time.RFC3339)},
			{"Market", ev.Market},
			{"Creator", ev.Creator},
			{"Block", strconv.FormatUint(ev.Block, 10)},
		},
	}
}

// MarketResolved builds the alert for a resolution from the market state
// after it was applied.
func MarketResolved(ev domain.MarketResolved, m domain.Market) Alert {
	return Alert{
		Event: EventMarketResolved,
		Title: fmt.Sprintf("Market #%s resolved %s", ev.MarketID, ev.WinningOutcome),
		Body:  m.Question,
		Fields: []Field{
			{"YES pool", units.FormatEther(m.YesPool, 4)},
			{"NO pool", units.FormatEther(m.NoPool, 4)},
			{"Volume", units.FormatEther(m.TotalVolume, 4)},
			{"Positions", strconv.Itoa(len(m.PositionIDs))},
			{"Block", strconv.FormatUint(ev.Block, 10)},
		},
	}
}

// IndexerError builds the alert for a fatal indexer error.
func IndexerError(err error) Alert {
	return Alert{Event: EventError, Title: "Indexer stopped", Body: err.Error()}
}
