package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/sonet/timeline/pkg/types"
)

// ErrInvalid is returned for malformed or mismatched cursors. The
// controller turns it into an empty page with success=false; a bad
// cursor is client-correctable, never a crash.
var ErrInvalid = errors.New("invalid cursor")

// Cursor encodes the resume position of a paginated timeline walk: the
// score and note ID of the last emitted entry, plus the algorithm and
// cache generation the walk started from. It is not an offset — offsets
// break under concurrent insertion, the (score, note ID) key does not.
type Cursor struct {
	Score      float64         `json:"s"`
	NoteID     string          `json:"n"`
	Algorithm  types.Algorithm `json:"a"`
	Generation uint64          `json:"g"`
}

// Encode serializes the cursor into its opaque wire form.
func Encode(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses an opaque cursor string. Empty input is not a valid
// cursor; callers treat "" as "start from the beginning" before calling
// Decode.
func Decode(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, ErrInvalid
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalid
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, ErrInvalid
	}
	if c.NoteID == "" {
		return Cursor{}, ErrInvalid
	}
	return c, nil
}
