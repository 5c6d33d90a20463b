package queue

import (
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRequestDecodesOpaqueFightID(t *testing.T) {
	raw := []byte(`{"fight_id":1234,"game":"tanks","game_settings":{"player_count":2},"codes_filenames":["a.py","b.py"]}`)
	var req Request
	require.NoError(t, json.Unmarshal(raw, &req))

	require.Equal(t, json.RawMessage("1234"), req.FightID)
	require.Equal(t, "tanks", req.Game)
	require.Equal(t, []string{"a.py", "b.py"}, req.CodesFilenames)
}

func TestResultEchoesFightIDByteForByte(t *testing.T) {
	res := Result{
		FightID:     json.RawMessage("1234"),
		Report:      []interface{}{"D", "X"},
		FinalStates: []interface{}{0, 0},
	}
	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"fight_id":1234,"report":["D","X"],"final_states":[0,0]}`, string(out))
}

func TestDecodeMessagesParsesDataField(t *testing.T) {
	streams := []redis.XStream{
		{
			Stream: "requests",
			Messages: []redis.XMessage{
				{
					ID: "1-0",
					Values: map[string]interface{}{
						"data": `{"fight_id":"abc","game":"testgame1","game_settings":{},"codes_filenames":["p0.py"]}`,
					},
				},
			},
		},
	}

	deliveries, err := decodeMessages(streams)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, "1-0", deliveries[0].MessageID)
	require.Equal(t, "testgame1", deliveries[0].Request.Game)
}

func TestDecodeMessagesRejectsMissingDataField(t *testing.T) {
	streams := []redis.XStream{
		{Messages: []redis.XMessage{{ID: "1-0", Values: map[string]interface{}{}}}},
	}
	_, err := decodeMessages(streams)
	require.Error(t, err)
}

func TestDecodeMessagesEmptyStreamsYieldsNoDeliveries(t *testing.T) {
	deliveries, err := decodeMessages(nil)
	require.NoError(t, err)
	require.Nil(t, deliveries)
}

func TestIsBusyGroupErr(t *testing.T) {
	require.True(t, isBusyGroupErr(errBusyGroup{}))
	require.False(t, isBusyGroupErr(nil))
}

type errBusyGroup struct{}

func (errBusyGroup) Error() string { return "BUSYGROUP Consumer Group name already exists" }
