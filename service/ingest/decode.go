package ingest

import (
	"encoding/json"

	"PPGateway/service/chat"
	"PPGateway/tools/decode"
	"PPGateway/tools/errs"
)

const envelopeKey = "newMessage"

// DecodeMessage accepts a raw message object or the {"newMessage": {...}}
// envelope clients receive.
func DecodeMessage(data []byte) (chat.Message, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return chat.Message{}, errs.ErrDecode.WrapMsg("message json", "err", err.Error())
	}
	return DecodeDocument(m)
}

// DecodeDocument converts a loosely typed document, e.g. a BSON change
// stream fullDocument, into a Message.
func DecodeDocument(m map[string]any) (chat.Message, error) {
	if m == nil {
		return chat.Message{}, errs.ErrDecode.WrapMsg("empty document")
	}
	if inner, ok := m[envelopeKey].(map[string]any); ok {
		m = inner
	}
	msg, err := decode.Map[chat.Message](m)
	if err != nil {
		return chat.Message{}, errs.ErrDecode.WrapMsg("message document", "err", err.Error())
	}
	return *msg, nil
}
