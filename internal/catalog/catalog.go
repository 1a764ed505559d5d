// Package catalog holds the static content shared by the authority and every
// replica: ingredients, the plate, cutting rules, recipes and the counter
// layout. Orders reference recipes by their index in this catalog, so both
// sides must load identical content.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
)

//go:embed default.json
var defaultDocument []byte

type IngredientID string

type CounterKind string

const (
	CounterClear     CounterKind = "clear"
	CounterContainer CounterKind = "container"
	CounterCutting   CounterKind = "cutting"
	CounterTrash     CounterKind = "trash"
	CounterDelivery  CounterKind = "delivery"
	CounterPlates    CounterKind = "plates"
)

func (k CounterKind) Valid() bool {
	switch k {
	case CounterClear, CounterContainer, CounterCutting, CounterTrash, CounterDelivery, CounterPlates:
		return true
	}
	return false
}

// ParticipantPrefix starts every participant id the hub hands out. Players
// and counters share one holder namespace, so counter ids may not use it.
const ParticipantPrefix = "player-"

var (
	ErrUnknownRecipe       = errors.New("catalog: unknown recipe")
	ErrFingerprintMismatch = errors.New("catalog: fingerprint mismatch")
	errInvalidCatalog      = errors.New("catalog: invalid document")
)

// Ingredient is a kitchen object definition that is not a plate.
type Ingredient struct {
	ID   IngredientID `json:"id" jsonschema:"title=Ingredient ID,pattern=^[a-z0-9-]+$,minLength=1,required"`
	Name string       `json:"name" jsonschema:"title=Display Name,required"`
}

// PlateDefinition lists the ingredients a plate accepts.
type PlateDefinition struct {
	ID      IngredientID   `json:"id" jsonschema:"title=Plate ID,pattern=^[a-z0-9-]+$,minLength=1,required"`
	Name    string         `json:"name" jsonschema:"title=Display Name"`
	Accepts []IngredientID `json:"accepts" jsonschema:"title=Accepted Ingredients,minItems=1,required"`
}

// CuttingRecipe turns Input into Output after ProgressMax cuts.
type CuttingRecipe struct {
	Input       IngredientID `json:"input" jsonschema:"title=Input Ingredient,required"`
	Output      IngredientID `json:"output" jsonschema:"title=Output Ingredient,required"`
	ProgressMax int          `json:"progressMax" jsonschema:"title=Cuts Required,minimum=1,required"`
}

// Recipe is an orderable dish. Ingredients form a set.
type Recipe struct {
	ID          string         `json:"id" jsonschema:"title=Recipe ID,pattern=^[a-z0-9-]+$,minLength=1,required"`
	Name        string         `json:"name" jsonschema:"title=Display Name,required"`
	Ingredients []IngredientID `json:"ingredients" jsonschema:"title=Ingredients,minItems=1,required"`
}

// CounterDefinition places a counter in the kitchen layout.
type CounterDefinition struct {
	ID         string       `json:"id" jsonschema:"title=Counter ID,pattern=^[a-z0-9-]+$,minLength=1,required"`
	Kind       CounterKind  `json:"kind" jsonschema:"title=Counter Kind,enum=clear,enum=container,enum=cutting,enum=trash,enum=delivery,enum=plates,required"`
	Ingredient IngredientID `json:"ingredient,omitempty" jsonschema:"title=Dispensed Ingredient,description=Required for container counters."`
}

// Document is the on-disk catalog layout.
type Document struct {
	Ingredients []Ingredient        `json:"ingredients" jsonschema:"title=Ingredients,minItems=1,required"`
	Plate       PlateDefinition     `json:"plate" jsonschema:"title=Plate,required"`
	Cutting     []CuttingRecipe     `json:"cutting" jsonschema:"title=Cutting Recipes"`
	Recipes     []Recipe            `json:"recipes" jsonschema:"title=Recipes,minItems=1,required"`
	Counters    []CounterDefinition `json:"counters" jsonschema:"title=Counter Layout,minItems=1,required"`
}

// Catalog is a validated, read-only view over a Document.
type Catalog struct {
	doc         Document
	ingredients map[IngredientID]Ingredient
	cutting     map[IngredientID]CuttingRecipe
	fingerprint string
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultDocument)
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc Document
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc)
}

// New validates doc and builds its lookup tables.
func New(doc Document) (*Catalog, error) {
	c := &Catalog{
		doc:         doc,
		ingredients: make(map[IngredientID]Ingredient, len(doc.Ingredients)),
		cutting:     make(map[IngredientID]CuttingRecipe, len(doc.Cutting)),
	}
	for _, ingredient := range doc.Ingredients {
		if ingredient.ID == "" {
			return nil, fmt.Errorf("%w: ingredient with empty id", errInvalidCatalog)
		}
		if _, dup := c.ingredients[ingredient.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate ingredient %q", errInvalidCatalog, ingredient.ID)
		}
		c.ingredients[ingredient.ID] = ingredient
	}
	if doc.Plate.ID == "" {
		return nil, fmt.Errorf("%w: plate id missing", errInvalidCatalog)
	}
	if _, clash := c.ingredients[doc.Plate.ID]; clash {
		return nil, fmt.Errorf("%w: plate id %q collides with an ingredient", errInvalidCatalog, doc.Plate.ID)
	}
	if err := c.checkSet("plate", doc.Plate.Accepts); err != nil {
		return nil, err
	}
	for _, rule := range doc.Cutting {
		if !c.HasIngredient(rule.Input) || !c.HasIngredient(rule.Output) {
			return nil, fmt.Errorf("%w: cutting rule %s->%s references unknown ingredient", errInvalidCatalog, rule.Input, rule.Output)
		}
		if rule.ProgressMax <= 0 {
			return nil, fmt.Errorf("%w: cutting rule for %s needs a positive progressMax", errInvalidCatalog, rule.Input)
		}
		if _, dup := c.cutting[rule.Input]; dup {
			return nil, fmt.Errorf("%w: duplicate cutting rule for %s", errInvalidCatalog, rule.Input)
		}
		c.cutting[rule.Input] = rule
	}
	if len(doc.Recipes) == 0 {
		return nil, fmt.Errorf("%w: no recipes", errInvalidCatalog)
	}
	accepted := make(map[IngredientID]struct{}, len(doc.Plate.Accepts))
	for _, id := range doc.Plate.Accepts {
		accepted[id] = struct{}{}
	}
	for _, recipe := range doc.Recipes {
		if err := c.checkSet("recipe "+recipe.ID, recipe.Ingredients); err != nil {
			return nil, err
		}
		for _, id := range recipe.Ingredients {
			if _, ok := accepted[id]; !ok {
				return nil, fmt.Errorf("%w: recipe %s needs %q which the plate does not accept", errInvalidCatalog, recipe.ID, id)
			}
		}
	}
	counters := make(map[string]struct{}, len(doc.Counters))
	for _, counter := range doc.Counters {
		if counter.ID == "" || !counter.Kind.Valid() {
			return nil, fmt.Errorf("%w: counter %q has kind %q", errInvalidCatalog, counter.ID, counter.Kind)
		}
		if strings.HasPrefix(counter.ID, ParticipantPrefix) {
			return nil, fmt.Errorf("%w: counter %q uses the reserved participant prefix %q", errInvalidCatalog, counter.ID, ParticipantPrefix)
		}
		if _, dup := counters[counter.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate counter %q", errInvalidCatalog, counter.ID)
		}
		counters[counter.ID] = struct{}{}
		if counter.Kind == CounterContainer && !c.HasIngredient(counter.Ingredient) {
			return nil, fmt.Errorf("%w: container %q dispenses unknown ingredient %q", errInvalidCatalog, counter.ID, counter.Ingredient)
		}
	}

	fingerprint, err := fingerprintDocument(doc)
	if err != nil {
		return nil, err
	}
	c.fingerprint = fingerprint
	return c, nil
}

func (c *Catalog) checkSet(owner string, ids []IngredientID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s lists no ingredients", errInvalidCatalog, owner)
	}
	seen := make(map[IngredientID]struct{}, len(ids))
	for _, id := range ids {
		if !c.HasIngredient(id) {
			return fmt.Errorf("%w: %s references unknown ingredient %q", errInvalidCatalog, owner, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s lists %q twice", errInvalidCatalog, owner, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// HasIngredient reports whether id names a non-plate ingredient.
func (c *Catalog) HasIngredient(id IngredientID) bool {
	_, ok := c.ingredients[id]
	return ok
}

func (c *Catalog) Ingredient(id IngredientID) (Ingredient, bool) {
	ingredient, ok := c.ingredients[id]
	return ingredient, ok
}

func (c *Catalog) Plate() PlateDefinition {
	plate := c.doc.Plate
	plate.Accepts = append([]IngredientID(nil), plate.Accepts...)
	return plate
}

// Cutting returns the rule that cuts input, if any.
func (c *Catalog) Cutting(input IngredientID) (CuttingRecipe, bool) {
	rule, ok := c.cutting[input]
	return rule, ok
}

// Recipes returns the recipes in catalog order.
func (c *Catalog) Recipes() []Recipe {
	out := make([]Recipe, len(c.doc.Recipes))
	for i, recipe := range c.doc.Recipes {
		recipe.Ingredients = append([]IngredientID(nil), recipe.Ingredients...)
		out[i] = recipe
	}
	return out
}

// Recipe looks a recipe up by catalog index.
func (c *Catalog) Recipe(index int) (Recipe, error) {
	if index < 0 || index >= len(c.doc.Recipes) {
		return Recipe{}, fmt.Errorf("%w: index %d", ErrUnknownRecipe, index)
	}
	recipe := c.doc.Recipes[index]
	recipe.Ingredients = append([]IngredientID(nil), recipe.Ingredients...)
	return recipe, nil
}

// Counters returns the counter layout in document order.
func (c *Catalog) Counters() []CounterDefinition {
	return append([]CounterDefinition(nil), c.doc.Counters...)
}

func (c *Catalog) Document() Document {
	return c.doc
}
