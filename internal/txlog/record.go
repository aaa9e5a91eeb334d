package txlog

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the stored record. The layout is protobuf wire compatible with
//
//	message Record {
//	  uint64 id = 1;
//	  bytes header = 2;
//	  bytes payload = 3;
//	  int64 committed_at = 4;
//	}
const (
	fieldID          protowire.Number = 1
	fieldHeader      protowire.Number = 2
	fieldPayload     protowire.Number = 3
	fieldCommittedAt protowire.Number = 4
)

func marshalRecord(rec Record) []byte {
	b := make([]byte, 0, 32+len(rec.Header)+len(rec.Payload))

	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.ID))

	// An absent header is encoded as an absent field, so it stays distinguishable from any encoded index
	if rec.HasHeader() {
		b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, rec.Header)
	}

	if len(rec.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, rec.Payload)
	}

	if rec.CommittedAt != 0 {
		b = protowire.AppendTag(b, fieldCommittedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(rec.CommittedAt))
	}

	return b
}

// unmarshalRecord decodes a stored record. The returned record never aliases data, as bbolt values are only
// valid for the life of the transaction they were read in.
func unmarshalRecord(data []byte) (Record, error) {
	var (
		rec    Record
		seenID bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: id: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			rec.ID = TxID(v)
			seenID = true
			data = data[n:]
		case num == fieldHeader && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: header: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			if len(v) > 0 {
				rec.Header = bytes.Clone(v)
			}
			data = data[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: payload: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			if len(v) > 0 {
				rec.Payload = bytes.Clone(v)
			}
			data = data[n:]
		case num == fieldCommittedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: committed_at: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			rec.CommittedAt = int64(v)
			data = data[n:]
		default:
			// Skip fields written by newer versions
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: field %d: %v", ErrCorruptRecord, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !seenID {
		return Record{}, fmt.Errorf("%w: missing id", ErrCorruptRecord)
	}
	return rec, nil
}
