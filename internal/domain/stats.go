package domain

import (
	"math/big"
	"strconv"
	"time"
)

// GlobalStatsID is the key of the singleton GlobalStats row.
const GlobalStatsID = "global"

// SecondsPerDay is the width of a DailyStats bucket.
const SecondsPerDay = 86400

// GlobalStats holds platform-wide counters. ActiveMarkets is the only one
// that ever decreases.
type GlobalStats struct {
	ID            string   `json:"id"`
	TotalMarkets  int64    `json:"totalMarkets"`
	TotalBets     int64    `json:"totalBets"`
	TotalVolume   *big.Int `json:"totalVolume"`
	ActiveMarkets int64    `json:"activeMarkets"`
	TotalUsers    int64    `json:"totalUsers"`
}

// NewGlobalStats returns the zeroed singleton.
func NewGlobalStats() GlobalStats {
	return GlobalStats{ID: GlobalStatsID, TotalVolume: Zero()}
}

// Clone returns a deep copy of g.
func (g GlobalStats) Clone() GlobalStats {
	out := g
	out.TotalVolume = CloneInt(g.TotalVolume)
	return out
}

// DailyStats holds the counters of one UTC day bucket.
type DailyStats struct {
	ID             string    `json:"id"`
	Date           time.Time `json:"date"`
	MarketsCreated int64     `json:"marketsCreated"`
	BetsPlaced     int64     `json:"betsPlaced"`
	VolumeTraded   *big.Int  `json:"volumeTraded"`
	ActiveUsers    int64     `json:"activeUsers"`
}

// DayStart truncates a block timestamp to the start of its day bucket.
func DayStart(ts uint64) uint64 {
	return ts / SecondsPerDay * SecondsPerDay
}

// DayID returns the DailyStats key for a block timestamp.
func DayID(ts uint64) string {
	return strconv.FormatUint(DayStart(ts), 10)
}

// NewDailyStats returns the zeroed bucket containing ts.
func NewDailyStats(ts uint64) DailyStats {
	day := DayStart(ts)
	return DailyStats{
		ID:           strconv.FormatUint(day, 10),
		Date:         time.Unix(int64(day), 0).UTC(),
		VolumeTraded: Zero(),
	}
}

// Clone returns a deep copy of d.
func (d DailyStats) Clone() DailyStats {
	out := d
	out.VolumeTraded = CloneInt(d.VolumeTraded)
	return out
}
