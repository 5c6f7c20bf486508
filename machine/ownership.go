package machine

import (
	"github.com/google/uuid"

	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	// SecurityProtocolKind is the credential item that claims machines and grants access to them.
	SecurityProtocolKind = "security_protocol"
	// SecurityProtocolBound is the damage value of a credential bound to its owner.
	SecurityProtocolBound = 2

	ownerKey = "Owner"
)

// Requester is whoever is trying to use a machine.
type Requester struct {
	ID         uuid.UUID         `json:"id"`
	Privileged bool              `json:"privileged,omitempty"`
	Items      []types.ItemStack `json:"items,omitempty"`
}

func (m *Machine) Owner() (uuid.UUID, bool) {
	if m.owner == nil {
		return uuid.Nil, false
	}
	return *m.owner, true
}

func (m *Machine) HasOwner() bool {
	return m.owner != nil
}

// Claim makes the owner named by the token's "Owner" tag the owner of an unowned machine. It
// returns false and changes nothing when the machine already has an owner or the token does not
// carry a valid owner id.
func (m *Machine) Claim(token types.ItemStack) bool {
	if m.owner != nil {
		return false
	}
	id, ok := tokenOwner(token)
	if !ok {
		return false
	}
	m.owner = &id
	m.ForceSync()
	return true
}

// Unclaim clears the owner when the token names the current owner.
func (m *Machine) Unclaim(token types.ItemStack) bool {
	if m.owner == nil {
		return false
	}
	id, ok := tokenOwner(token)
	if !ok || id != *m.owner {
		return false
	}
	m.owner = nil
	m.ForceSync()
	return true
}

// IsUsableBy reports whether r may interact with the machine: anyone may use an unowned machine,
// the owner and privileged requesters always may, and others need a bound security protocol
// naming the owner.
func (m *Machine) IsUsableBy(r Requester) bool {
	if m.owner == nil {
		return true
	}
	if r.ID == *m.owner || r.Privileged {
		return true
	}
	for _, item := range r.Items {
		if item.Kind != SecurityProtocolKind || item.Damage != SecurityProtocolBound {
			continue
		}
		if id, ok := tokenOwner(item); ok && id == *m.owner {
			return true
		}
	}
	return false
}

func tokenOwner(token types.ItemStack) (uuid.UUID, bool) {
	if token.Tag == nil || !token.Tag.HasString(ownerKey) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(token.Tag.GetString(ownerKey))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// NewSecurityProtocol returns a bound credential for owner.
func NewSecurityProtocol(owner uuid.UUID) types.ItemStack {
	item := types.ItemStack{Kind: SecurityProtocolKind, Count: 1, Damage: SecurityProtocolBound}
	item.Tag = tag.New()
	item.Tag.SetString(ownerKey, owner.String())
	return item
}
