package mission

import (
	"encoding/hex"
	"strconv"

	"workmesh/core/types"
)

// TypeMissionRecorded is emitted once per terminal escrow transition after
// both histories have been appended.
const TypeMissionRecorded = "mission.recorded"

// Recorded is the event payload for an appended mission record.
type Recorded struct {
	OfferID  uint64
	Client   [20]byte
	Provider [20]byte
	Disputed bool
}

func (Recorded) EventType() string { return TypeMissionRecorded }

func (e Recorded) Event() *types.Event {
	return &types.Event{
		Type: TypeMissionRecorded,
		Attributes: map[string]string{
			"offerId":  strconv.FormatUint(e.OfferID, 10),
			"client":   hex.EncodeToString(e.Client[:]),
			"provider": hex.EncodeToString(e.Provider[:]),
			"disputed": strconv.FormatBool(e.Disputed),
		},
	}
}
