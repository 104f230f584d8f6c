package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcsched/internal/interval"
)

func TestDateEntryUsesLabelAsKey(t *testing.T) {
	loc := interval.LoadLocation("Europe/Paris")
	d := DateEntry{
		Label: "activity",
		Value: "Lecture",
		Start: time.Date(2021, 9, 6, 9, 0, 0, 0, loc),
		End:   time.Date(2021, 9, 6, 11, 0, 0, 0, loc),
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"activity":"Lecture","startTime":"2021-09-06T09:00:00","endTime":"2021-09-06T11:00:00"}`, string(data))

	d.Label = ""
	data, err = json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"startTime":"2021-09-06T09:00:00","endTime":"2021-09-06T11:00:00"}`, string(data))
}

func TestFlexID(t *testing.T) {
	var ids []FlexID
	require.NoError(t, json.Unmarshal([]byte(`[12, "13", "t-9", " 4 "]`), &ids))
	assert.Equal(t, []FlexID{"12", "13", "t-9", "4"}, ids)

	data, err := json.Marshal(ids)
	require.NoError(t, err)
	assert.Equal(t, `[12,13,"t-9",4]`, string(data))

	data, err = json.Marshal(FlexID("007"))
	require.NoError(t, err)
	assert.Equal(t, `"007"`, string(data))

	var bad FlexID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &bad))
}
