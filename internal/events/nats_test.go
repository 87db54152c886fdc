package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/notify"
	"github.com/sharon232323/bidmate/internal/utils"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSPublisher_Notify(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn)
	itemID := utils.NewSixID()
	ev := notify.Event{EventID: "e1", Type: notify.EventOfferPlaced, ItemID: itemID, Bidder: "b@x.com"}

	require.NoError(t, p.Notify(context.Background(), ev))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "market.events."+itemID.String(), conn.subjects[0])

	var got notify.Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, ev.ItemID, got.ItemID)
	assert.Equal(t, ev.Type, got.Type)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	boom := errors.New("connection closed")
	p := NewNATSPublisher(&fakeConn{err: boom})
	err := p.Notify(context.Background(), notify.Event{ItemID: utils.NewSixID()})
	assert.ErrorIs(t, err, boom)
}
