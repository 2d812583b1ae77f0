package codec

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

// Arrow IPC encapsulated message framing:
//
//	<0xFFFFFFFF><int32 metadata length><flatbuffer Message, padded><body>
//
// A frame with metadata length 0 is the end-of-stream marker.
const (
	continuationMarker uint32 = 0xFFFFFFFF
	framePrefixSize           = 8
)

// messageHeader is the Message.header union tag from the Arrow schema
type messageHeader uint8

const (
	headerNone            messageHeader = 0
	headerSchema          messageHeader = 1
	headerDictionaryBatch messageHeader = 2
	headerRecordBatch     messageHeader = 3
)

type frame struct {
	offset  int
	metaLen int
	bodyLen int
	header  messageHeader
}

// end is the payload offset just past the frame's body.
func (f frame) end() int {
	return f.offset + framePrefixSize + f.metaLen + f.bodyLen
}

// scanFrames walks the encapsulated messages the Arrow reader will consume
// for the first record batch: the schema, any dictionary batches, and the
// first record batch itself. Every declared length and every flatbuffer
// offset in those messages is checked against the bytes actually present.
// Anything after the first record batch is not inspected. The scan also
// stops at the end-of-stream marker or at the end of input.
func scanFrames(payload []byte) ([]frame, error) {
	var (
		frames []frame
		schema schemaShape
	)
	pos := 0

	for pos < len(payload) {
		remaining := len(payload) - pos
		if remaining < 4 {
			return nil, formatError("truncated message prefix", pos).
				WithDetail("remaining", remaining)
		}
		if marker := flatbuffers.GetUint32(payload[pos:]); marker != continuationMarker {
			return nil, formatError("missing continuation marker", pos).
				WithDetail("marker", marker)
		}
		if remaining < framePrefixSize {
			return nil, formatError("truncated metadata length", pos).
				WithDetail("remaining", remaining)
		}

		metaLen := int64(flatbuffers.GetInt32(payload[pos+4:]))
		if metaLen == 0 {
			break
		}
		if metaLen < 0 || metaLen > int64(remaining-framePrefixSize) {
			return nil, formatError("declared metadata length exceeds input", pos).
				WithDetail("declared", metaLen).
				WithDetail("available", remaining-framePrefixSize)
		}

		metaStart := pos + framePrefixSize
		metaEnd := metaStart + int(metaLen)
		msg, err := parseMessage(payload[metaStart:metaEnd])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "unparseable message metadata").
				WithDetail("offset", pos)
		}
		if msg.bodyLen < 0 || msg.bodyLen > int64(len(payload)-metaEnd) {
			return nil, formatError("declared body length exceeds input", pos).
				WithDetail("declared", msg.bodyLen).
				WithDetail("available", len(payload)-metaEnd)
		}

		switch {
		case len(frames) == 0:
			if msg.header != headerSchema {
				return nil, formatError("first message is not a schema", pos).
					WithDetail("header", msg.header)
			}
			schema, err = msg.checkSchema()
		case msg.header == headerDictionaryBatch:
			err = msg.checkDictionaryBatch()
		case msg.header == headerRecordBatch:
			err = msg.checkRecordBatch(schema.fixedWidth)
		default:
			return nil, formatError("unexpected message type after schema", pos).
				WithDetail("header", msg.header)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid message metadata").
				WithDetail("offset", pos).
				WithDetail("header", msg.header)
		}

		frames = append(frames, frame{
			offset:  pos,
			metaLen: int(metaLen),
			bodyLen: int(msg.bodyLen),
			header:  msg.header,
		})
		pos = metaEnd + int(msg.bodyLen)

		if msg.header == headerRecordBatch {
			break
		}
	}

	if len(frames) == 0 {
		return nil, formatError("stream has no schema message", 0)
	}
	return frames, nil
}

func formatError(msg string, offset int) *errors.Error {
	return errors.New(errors.ErrorTypeFormat, msg).WithDetail("offset", offset)
}
