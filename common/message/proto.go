package message

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// BuildReport summarises one bulk tile build. It is encoded as a protobuf
// message so that external tooling can read it without linking this module:
//
//	message BuildReport {
//	  uint32 tiles_total = 1;
//	  uint32 tiles_built = 2;
//	  uint32 tiles_empty = 3;
//	  uint32 tiles_failed = 4;
//	  int64  elapsed_ns = 5;
//	  bool   cancelled = 6;
//	  repeated TileFailure failures = 7;
//	}
//	message TileFailure { sint32 x = 1; sint32 y = 2; string reason = 3; }
type BuildReport struct {
	TilesTotal  int
	TilesBuilt  int
	TilesEmpty  int
	TilesFailed int
	Elapsed     time.Duration
	Cancelled   bool
	Failures    []TileFailure
}

type TileFailure struct {
	X, Y   int32
	Reason string
}

const (
	fieldTilesTotal  protowire.Number = 1
	fieldTilesBuilt  protowire.Number = 2
	fieldTilesEmpty  protowire.Number = 3
	fieldTilesFailed protowire.Number = 4
	fieldElapsed     protowire.Number = 5
	fieldCancelled   protowire.Number = 6
	fieldFailures    protowire.Number = 7

	fieldFailureX      protowire.Number = 1
	fieldFailureY      protowire.Number = 2
	fieldFailureReason protowire.Number = 3
)

var ErrMalformed = errors.New("malformed build report")

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func Encode(r *BuildReport) (data []byte) {
	data = appendVarint(data, fieldTilesTotal, uint64(r.TilesTotal))
	data = appendVarint(data, fieldTilesBuilt, uint64(r.TilesBuilt))
	data = appendVarint(data, fieldTilesEmpty, uint64(r.TilesEmpty))
	data = appendVarint(data, fieldTilesFailed, uint64(r.TilesFailed))
	data = appendVarint(data, fieldElapsed, uint64(r.Elapsed.Nanoseconds()))
	data = appendVarint(data, fieldCancelled, protowire.EncodeBool(r.Cancelled))
	for _, f := range r.Failures {
		var sub []byte
		sub = appendVarint(sub, fieldFailureX, protowire.EncodeZigZag(int64(f.X)))
		sub = appendVarint(sub, fieldFailureY, protowire.EncodeZigZag(int64(f.Y)))
		if f.Reason != "" {
			sub = protowire.AppendTag(sub, fieldFailureReason, protowire.BytesType)
			sub = protowire.AppendString(sub, f.Reason)
		}
		data = protowire.AppendTag(data, fieldFailures, protowire.BytesType)
		data = protowire.AppendBytes(data, sub)
	}
	return data
}

func Decode(data []byte) (*BuildReport, error) {
	r := &BuildReport{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType && num <= fieldCancelled:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			r.setScalar(num, v)
		case typ == protowire.BytesType && num == fieldFailures:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			f, err := decodeFailure(sub)
			if err != nil {
				return nil, err
			}
			r.Failures = append(r.Failures, f)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}

func (r *BuildReport) setScalar(num protowire.Number, v uint64) {
	switch num {
	case fieldTilesTotal:
		r.TilesTotal = int(v)
	case fieldTilesBuilt:
		r.TilesBuilt = int(v)
	case fieldTilesEmpty:
		r.TilesEmpty = int(v)
	case fieldTilesFailed:
		r.TilesFailed = int(v)
	case fieldElapsed:
		r.Elapsed = time.Duration(int64(v))
	case fieldCancelled:
		r.Cancelled = protowire.DecodeBool(v)
	}
}

func decodeFailure(data []byte) (f TileFailure, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return f, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case typ == protowire.VarintType && (num == fieldFailureX || num == fieldFailureY):
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return f, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldFailureX {
				f.X = int32(protowire.DecodeZigZag(v))
			} else {
				f.Y = int32(protowire.DecodeZigZag(v))
			}
		case typ == protowire.BytesType && num == fieldFailureReason:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return f, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			f.Reason = s
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return f, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return f, nil
}
