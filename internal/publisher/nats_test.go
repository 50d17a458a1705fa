package publisher

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "stop_12", SubjectToken(" stop 12 "))
	assert.Equal(t, "a_b_c_d", SubjectToken("a.b>c*d"))
	assert.Equal(t, "route_5", SubjectToken("route/5"))
	assert.Equal(t, "_", SubjectToken("   "))
}

func TestViewSubject(t *testing.T) {
	assert.Equal(t, "tracker.64f1a.view", ViewSubject("64f1a"))
	assert.Equal(t, "tracker.CEN_01.view", ViewSubject("CEN.01"))
}

func TestPublishView_RoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	pub, err := NewNATSPublisher(url, "bus-tracker-test", false, nil)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := pub.Conn().SubscribeSync(ViewSubject("stop-1"))
	require.NoError(t, err)
	require.NoError(t, pub.Conn().Flush())

	require.NoError(t, pub.PublishView("stop-1", map[string]int{"countdown": 7}))
	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, 7, got["countdown"])
}
