package state

import (
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v4"
)

func init() {
	// Decimals are persisted as their canonical string form.
	msgpack.Register(decimal.Decimal{},
		func(e *msgpack.Encoder, v reflect.Value) error {
			return e.EncodeString(v.Interface().(decimal.Decimal).String())
		},
		func(d *msgpack.Decoder, v reflect.Value) error {
			s, err := d.DecodeString()
			if err != nil {
				return err
			}
			dec, err := decimal.NewFromString(s)
			if err != nil {
				return fmt.Errorf("decode decimal %q: %w", s, err)
			}
			v.Set(reflect.ValueOf(dec))
			return nil
		})

	// Timestamps are written in UTC and must load in UTC, not the host zone.
	msgpack.Register(time.Time{},
		func(e *msgpack.Encoder, v reflect.Value) error {
			return e.EncodeTime(v.Interface().(time.Time))
		},
		func(d *msgpack.Decoder, v reflect.Value) error {
			tm, err := d.DecodeTime()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(tm.UTC()))
			return nil
		})
}

func encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

func decode(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
