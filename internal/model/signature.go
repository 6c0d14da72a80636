package model

import (
	"sort"
	"strings"
	"time"
)

// TeammateSignature is an order-independent representation of the owner's
// teammates in one match. The zero value is the unknown sentinel: it equals
// itself and differs from every concrete signature.
type TeammateSignature struct {
	key   string
	known bool
}

// UnknownSignature is used when a match has no usable teammate data.
var UnknownSignature = TeammateSignature{}

// NewTeammateSignature canonicalizes teammate ids. self is dropped, duplicates
// and blanks are ignored, and an empty result yields UnknownSignature.
func NewTeammateSignature(self string, teammates []string) TeammateSignature {
	seen := make(map[string]struct{}, len(teammates))
	ids := make([]string, 0, len(teammates))
	for _, id := range teammates {
		id = strings.TrimSpace(id)
		if id == "" || id == self {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return UnknownSignature
	}
	sort.Strings(ids)
	return TeammateSignature{key: strings.Join(ids, ","), known: true}
}

// SignatureFromParticipants derives the owner's signature from a match roster.
// Without a self row or a team for the owner the signature is unknown.
func SignatureFromParticipants(parts []Participant) TeammateSignature {
	var self *Participant
	for i := range parts {
		if parts[i].IsSelf {
			self = &parts[i]
			break
		}
	}
	if self == nil || self.Team == "" {
		return UnknownSignature
	}
	var mates []string
	for _, p := range parts {
		if p.Team == self.Team {
			mates = append(mates, p.PlayerID)
		}
	}
	return NewTeammateSignature(self.PlayerID, mates)
}

func (s TeammateSignature) Known() bool { return s.known }

func (s TeammateSignature) Equal(o TeammateSignature) bool {
	return s == o
}

func (s TeammateSignature) String() string {
	if !s.known {
		return "unknown"
	}
	return s.key
}

// SignaturePoint is one match as seen by session segmentation.
// HasRoster is false when the participants category is not yet complete for
// the match, in which case Signature is UnknownSignature by construction
// rather than by observation.
type SignaturePoint struct {
	MatchID   string
	StartTime time.Time
	Signature TeammateSignature
	HasRoster bool
}
