//go:build !jsonstd

package jsoncompat

import (
	"io"

	"github.com/bytedance/sonic"
)

// api behaves like encoding/json: sorted map keys, escaped html, valid utf-8.
var api = sonic.ConfigStd

// Marshal encodes with sonic unless the jsonstd build tag is present.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

// Unmarshal decodes with sonic unless the jsonstd build tag is present.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

func NewEncoder(w io.Writer) Encoder { return api.NewEncoder(w) }

func NewDecoder(r io.Reader) Decoder { return api.NewDecoder(r) }
