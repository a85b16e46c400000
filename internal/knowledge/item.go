package knowledge

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind discriminates the two item variants.
type Kind string

const (
	KindEntity   Kind = "entity"
	KindRelation Kind = "relation"
)

// relationType is the type marker relations carry in their flat serialized form.
const relationType = "relation"

// Entity is a node of the knowledge graph.
type Entity struct {
	ID          string
	Type        string
	Name        string
	Description string
	Properties  map[string]interface{}
}

// Endpoint is one side of a relation. Resolved endpoints hold an entity id; unresolved ones keep
// the raw name the extractor produced.
type Endpoint struct {
	ID       string
	Resolved bool
}

// Ref returns a resolved endpoint.
func Ref(id string) Endpoint { return Endpoint{ID: id, Resolved: true} }

// Unresolved returns an endpoint that could not be linked to an entity.
func Unresolved(name string) Endpoint { return Endpoint{ID: name} }

// Relation is a directed edge between two entities.
type Relation struct {
	ID           string
	Source       Endpoint
	Target       Endpoint
	RelationType string
	Description  string
}

// Item is either an Entity or a Relation.
type Item struct {
	Kind     Kind
	Entity   *Entity
	Relation *Relation
}

func EntityItem(e Entity) Item { return Item{Kind: KindEntity, Entity: &e} }

func RelationItem(r Relation) Item { return Item{Kind: KindRelation, Relation: &r} }

// ID returns the id of whichever variant the item holds.
func (it Item) ID() string {
	switch it.Kind {
	case KindEntity:
		if it.Entity != nil {
			return it.Entity.ID
		}
	case KindRelation:
		if it.Relation != nil {
			return it.Relation.ID
		}
	}
	return ""
}

// EmbeddingText is the text an item is indexed under.
func (it Item) EmbeddingText() string {
	if it.Kind == KindRelation && it.Relation != nil {
		return it.Relation.Description + " " + it.Relation.RelationType
	}
	if it.Entity != nil {
		return it.Entity.Name + " " + it.Entity.Description
	}
	return ""
}

// record is the flat wire form shared by JSON and YAML.
type record struct {
	ID               string                 `json:"id" yaml:"id"`
	Type             string                 `json:"type" yaml:"type"`
	Name             string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Description      string                 `json:"description" yaml:"description"`
	Properties       map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
	Source           string                 `json:"source,omitempty" yaml:"source,omitempty"`
	Target           string                 `json:"target,omitempty" yaml:"target,omitempty"`
	RelationType     string                 `json:"relation_type,omitempty" yaml:"relation_type,omitempty"`
	UnresolvedSource bool                   `json:"unresolved_source,omitempty" yaml:"unresolved_source,omitempty"`
	UnresolvedTarget bool                   `json:"unresolved_target,omitempty" yaml:"unresolved_target,omitempty"`
}

func (it Item) toRecord() (record, error) {
	switch {
	case it.Kind == KindEntity && it.Entity != nil:
		e := it.Entity
		return record{ID: e.ID, Type: e.Type, Name: e.Name, Description: e.Description, Properties: e.Properties}, nil
	case it.Kind == KindRelation && it.Relation != nil:
		r := it.Relation
		return record{
			ID:               r.ID,
			Type:             relationType,
			Description:      r.Description,
			Source:           r.Source.ID,
			Target:           r.Target.ID,
			RelationType:     r.RelationType,
			UnresolvedSource: !r.Source.Resolved,
			UnresolvedTarget: !r.Target.Resolved,
		}, nil
	}
	return record{}, fmt.Errorf("knowledge item %q has no payload for kind %q", it.ID(), it.Kind)
}

func (rec record) toItem() Item {
	if rec.Type == relationType {
		return RelationItem(Relation{
			ID:           rec.ID,
			Source:       Endpoint{ID: rec.Source, Resolved: !rec.UnresolvedSource},
			Target:       Endpoint{ID: rec.Target, Resolved: !rec.UnresolvedTarget},
			RelationType: rec.RelationType,
			Description:  rec.Description,
		})
	}
	return EntityItem(Entity{
		ID:          rec.ID,
		Type:        rec.Type,
		Name:        rec.Name,
		Description: rec.Description,
		Properties:  rec.Properties,
	})
}

func (it Item) MarshalJSON() ([]byte, error) {
	rec, err := it.toRecord()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*it = rec.toItem()
	return nil
}

func (it Item) MarshalYAML() (interface{}, error) {
	return it.toRecord()
}

func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	var rec record
	if err := node.Decode(&rec); err != nil {
		return err
	}
	*it = rec.toItem()
	return nil
}
