package ownership

import (
	"fmt"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
)

type ObjectID string

type HolderID string

// HolderKind separates counters from players. Both hold at most one object.
type HolderKind int

const (
	HolderCounter HolderKind = iota
	HolderPlayer
)

func (k HolderKind) String() string {
	switch k {
	case HolderCounter:
		return "counter"
	case HolderPlayer:
		return "player"
	default:
		return fmt.Sprintf("holder(%d)", int(k))
	}
}

// ObjectKind tags the object variant. Plates carry an ingredient set, plain
// ingredients carry nothing extra.
type ObjectKind int

const (
	KindIngredient ObjectKind = iota
	KindPlate
)

func (k ObjectKind) String() string {
	switch k {
	case KindIngredient:
		return "ingredient"
	case KindPlate:
		return "plate"
	default:
		return fmt.Sprintf("object(%d)", int(k))
	}
}

// ParseObjectKind is the inverse of ObjectKind.String.
func ParseObjectKind(value string) (ObjectKind, error) {
	switch value {
	case "ingredient":
		return KindIngredient, nil
	case "plate":
		return KindPlate, nil
	default:
		return 0, fmt.Errorf("ownership: unknown object kind %q", value)
	}
}

// ParseHolderKind is the inverse of HolderKind.String.
func ParseHolderKind(value string) (HolderKind, error) {
	switch value {
	case "counter":
		return HolderCounter, nil
	case "player":
		return HolderPlayer, nil
	default:
		return 0, fmt.Errorf("ownership: unknown holder kind %q", value)
	}
}

type plateState struct {
	accepts     map[catalog.IngredientID]struct{}
	acceptOrder []catalog.IngredientID
	ingredients []catalog.IngredientID
}

func (p *plateState) has(id catalog.IngredientID) bool {
	for _, existing := range p.ingredients {
		if existing == id {
			return true
		}
	}
	return false
}

type object struct {
	id         ObjectID
	seq        uint64
	definition catalog.IngredientID
	kind       ObjectKind
	holder     HolderID
	plate      *plateState
}

func (o *object) view() ObjectView {
	v := ObjectView{
		ID:         o.id,
		Definition: o.definition,
		Kind:       o.kind,
		Holder:     o.holder,
	}
	if o.plate != nil {
		v.Ingredients = append([]catalog.IngredientID(nil), o.plate.ingredients...)
		v.Accepts = append([]catalog.IngredientID(nil), o.plate.acceptOrder...)
	}
	return v
}

// ObjectView is a detached copy of an object's state.
type ObjectView struct {
	ID          ObjectID
	Definition  catalog.IngredientID
	Kind        ObjectKind
	Holder      HolderID
	Ingredients []catalog.IngredientID
	Accepts     []catalog.IngredientID
}

type holder struct {
	id      HolderID
	kind    HolderKind
	seq     uint64
	current ObjectID
}

// HolderView is a detached copy of a holder's state.
type HolderView struct {
	ID      HolderID
	Kind    HolderKind
	Current ObjectID
}
