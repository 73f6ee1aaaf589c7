package ingest

import (
	"testing"
	"time"

	"PPGateway/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDecodeRawMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{
		"_id":"m1","senderId":"u1","receiverId":"u2","text":"hi",
		"image":"https://cdn/x.png","createdAt":"2024-05-01T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "u2", msg.ReceiverID)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, "https://cdn/x.png", msg.Image)
	assert.True(t, msg.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestDecodeEnvelope(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"newMessage":{"_id":"m2","senderId":"a","receiverId":"b","createdAt":1714564800000}}`))
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, "a", msg.SenderID)
	assert.Equal(t, int64(1714564800000), msg.CreatedAt.UnixMilli())
}

func TestDecodeBadInput(t *testing.T) {
	_, err := DecodeMessage([]byte(`not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDecode)

	_, err = DecodeMessage([]byte(`{"createdAt":"yesterday"}`))
	assert.ErrorIs(t, err, errs.ErrDecode)

	_, err = DecodeDocument(nil)
	assert.Error(t, err)
}

func TestDecodeBSONDocument(t *testing.T) {
	id := primitive.NewObjectID()
	sender := primitive.NewObjectID()
	receiver := primitive.NewObjectID()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.M{
		"_id":        id,
		"senderId":   sender,
		"receiverId": receiver,
		"text":       "from mongo",
		"createdAt":  primitive.NewDateTimeFromTime(created),
		"__v":        int32(0),
	}
	msg, err := DecodeDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, id.Hex(), msg.ID)
	assert.Equal(t, sender.Hex(), msg.SenderID)
	assert.Equal(t, receiver.Hex(), msg.ReceiverID)
	assert.Equal(t, "from mongo", msg.Text)
	assert.True(t, msg.CreatedAt.Equal(created))
}
