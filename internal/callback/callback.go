// Package callback encodes inline keyboard actions into the platform's
// callback data field. The encoded token carries the whole UI state; nothing
// is kept server-side.
package callback

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"memobridge/internal/domain"
)

// MaxLen is the platform limit for callback data.
const MaxLen = 64

// MaxHistory bounds the page-token stack carried by list navigation.
const MaxHistory = 8

// Tag identifies the action kind on the wire.
type Tag string

const (
	TagList       Tag = "l"
	TagDetail     Tag = "d"
	TagVisibility Tag = "v"
	TagPin        Tag = "p"
)

// Action is one of List, Detail, SetVisibility or TogglePin.
type Action interface {
	Tag() Tag
	// Expired reports whether the action lost its context while encoding.
	Expired() bool
}

// Nav is the list position an action returns to.
type Nav struct {
	PageToken string
	History   []string
}

// Back returns the list action for n.
func (n Nav) Back() List { return List{Nav: n} }

// Next is the position after following nextToken from n. The current token
// is pushed so Prev can replay it.
func (n Nav) Next(nextToken string) Nav {
	h := append(append([]string{}, n.History...), n.PageToken)
	if len(h) > MaxHistory {
		h = h[len(h)-MaxHistory:]
	}
	return Nav{PageToken: nextToken, History: h}
}

// Prev pops the last token. ok is false when the history is empty.
func (n Nav) Prev() (Nav, bool) {
	if len(n.History) == 0 {
		return Nav{}, false
	}
	last := len(n.History) - 1
	return Nav{PageToken: n.History[last], History: append([]string{}, n.History[:last]...)}, true
}

type List struct {
	Nav
	expired bool
}

type Detail struct {
	NoteID string
	Nav
	expired bool
}

type SetVisibility struct {
	NoteID     string
	Visibility domain.Visibility
	Nav
	expired bool
}

type TogglePin struct {
	NoteID string
	Nav
	expired bool
}

func (List) Tag() Tag          { return TagList }
func (Detail) Tag() Tag        { return TagDetail }
func (SetVisibility) Tag() Tag { return TagVisibility }
func (TogglePin) Tag() Tag     { return TagPin }

func (a List) Expired() bool          { return a.expired }
func (a Detail) Expired() bool        { return a.expired || a.NoteID == "" }
func (a SetVisibility) Expired() bool { return a.expired || a.NoteID == "" || !a.Visibility.Valid() }
func (a TogglePin) Expired() bool     { return a.expired || a.NoteID == "" }

// wire is the structured form before encoding. It is marshaled as a
// positional JSON array with trailing empty fields dropped.
type wire struct {
	T Tag
	N string
	V string
	P string
	H []string
}

func (w wire) MarshalJSON() ([]byte, error) {
	fields := []any{w.T, w.N, w.V, w.P, w.H}
	n := len(fields)
	if len(w.H) == 0 {
		n--
		for n > 1 && fields[n-1] == "" {
			n--
		}
	}
	return json.Marshal(fields[:n])
}

func (w *wire) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 || len(raw) > 5 {
		return errMalformed
	}
	strs := []*string{(*string)(&w.T), &w.N, &w.V, &w.P}
	for i, r := range raw {
		if i < len(strs) {
			if err := json.Unmarshal(r, strs[i]); err != nil {
				return err
			}
			continue
		}
		if err := json.Unmarshal(r, &w.H); err != nil {
			return err
		}
	}
	return nil
}

var errMalformed = errors.New("callback: malformed payload")

var visCodes = map[domain.Visibility]string{
	domain.VisibilityPublic:    "u",
	domain.VisibilityProtected: "w",
	domain.VisibilityPrivate:   "r",
}

func toWire(a Action) wire {
	switch v := a.(type) {
	case List:
		return wire{T: TagList, P: v.PageToken, H: v.History}
	case Detail:
		return wire{T: TagDetail, N: v.NoteID, P: v.PageToken, H: v.History}
	case SetVisibility:
		return wire{T: TagVisibility, N: v.NoteID, V: visCodes[v.Visibility], P: v.PageToken, H: v.History}
	case TogglePin:
		return wire{T: TagPin, N: v.NoteID, P: v.PageToken, H: v.History}
	}
	return wire{}
}

func fromWire(w wire, expired bool) (Action, bool) {
	nav := Nav{PageToken: w.P, History: w.H}
	switch w.T {
	case TagList:
		return List{Nav: nav, expired: expired}, true
	case TagDetail:
		return Detail{NoteID: w.N, Nav: nav, expired: expired}, true
	case TagVisibility:
		var vis domain.Visibility
		for k, code := range visCodes {
			if code == w.V {
				vis = k
			}
		}
		return SetVisibility{NoteID: w.N, Visibility: vis, Nav: nav, expired: expired}, true
	case TagPin:
		return TogglePin{NoteID: w.N, Nav: nav, expired: expired}, true
	}
	return nil, false
}

// Encode returns a token of at most MaxLen characters. When the full action
// does not fit, the history is dropped; when that still does not fit, the
// token is the bare tag and the decoded action reports Expired.
func Encode(a Action) string {
	w := toWire(a)
	if s, ok := encodeWire(w); ok {
		return s
	}
	if len(w.H) > 0 {
		w.H = nil
		if s, ok := encodeWire(w); ok {
			return s
		}
	}
	return string(w.T)
}

func encodeWire(w wire) (string, bool) {
	data, err := json.Marshal(w)
	if err != nil {
		return "", false
	}
	s := base64.RawURLEncoding.EncodeToString(data)
	return s, len(s) <= MaxLen
}

// Decode parses a token produced by Encode. ok is false for any malformed
// input. A bare tag decodes to an expired action of that kind.
func Decode(token string) (Action, bool) {
	if token == "" || len(token) > MaxLen {
		return nil, false
	}
	if len(token) == 1 {
		return fromWire(wire{T: Tag(token)}, true)
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, false
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	return fromWire(w, false)
}
