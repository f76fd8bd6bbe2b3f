package rpctypes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeZeroIsNull(t *testing.T) {
	b, err := json.Marshal(Ban{IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Time":null`)

	var ban Ban
	ban.Time = Time{Time: time.Now()}
	require.NoError(t, json.Unmarshal(b, &ban))
	assert.True(t, ban.Time.IsZero())
}

func TestTimeRFC3339(t *testing.T) {
	tm := Time{Time: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)}
	b, err := json.Marshal(tm)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-06T07:08:09Z"`, string(b))

	var got Time
	require.NoError(t, json.Unmarshal(b, &got))
	assert.True(t, tm.Equal(got.Time))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &got))
}
