package types

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/spf13/cast"
)

// Data is the generic key→value bag used for node configs, node outputs
// and run inputs. Values may be arbitrarily nested maps, lists and scalars.
type Data map[string]any

func (d *Data) Get(key string) (any, bool) {
	v, exists := (*d)[key]
	return v, exists
}

func (d *Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d *Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d *Data) GetBool(key string) (bool, bool) {
	v, exists := d.Get(key)
	return cast.ToBool(v), exists
}

func (d *Data) GetFloat64(key string) (float64, bool) {
	v, exists := d.Get(key)
	return cast.ToFloat64(v), exists
}

func (d *Data) GetStringSlice(key string) ([]string, bool) {
	v, exists := d.Get(key)
	return cast.ToStringSlice(v), exists
}

// GetData returns a nested map value as Data. A missing or non-map value
// yields an empty Data so callers can chain lookups safely.
func (d *Data) GetData(key string) (Data, bool) {
	v, exists := d.Get(key)
	if !exists {
		return Data{}, false
	}
	switch m := v.(type) {
	case Data:
		return m, true
	case map[string]any:
		return Data(m), true
	}
	return Data{}, false
}

func (d *Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFound
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Trace(err)
	}
	return json.Unmarshal(b, s)
}

func (d *Data) Set(key string, value any) {
	(*d)[key] = value
}

func (d Data) Clone() Data {
	c := make(Data, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}
