package extract

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
)

// descriptionSeparator joins descriptions of merged entities.
const descriptionSeparator = "；"

// RawEntity is an entity as the model reported it for one chunk.
type RawEntity struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Properties  map[string]interface{} `json:"properties"`

	chunk   int
	aliases []linkKey
}

// RawRelation is a relation as the model reported it. Source and Target hold entity ids or names.
type RawRelation struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	RelationType string `json:"relation_type"`
	Description  string `json:"description"`

	chunk int
}

// linkKey scopes a model-assigned id to the chunk it was produced for.
type linkKey struct {
	chunk int
	id    string
}

// StandardizeEntities merges entities that share an exact name. The first occurrence keeps its position;
// distinct descriptions are joined with "；" and properties are merged with later values winning.
// Applying it twice gives the same result as applying it once.
func StandardizeEntities(entities []RawEntity) []RawEntity {
	out := make([]RawEntity, 0, len(entities))
	byName := make(map[string]int, len(entities))
	for _, e := range entities {
		idx, seen := byName[e.Name]
		if !seen {
			merged := e
			merged.Properties = copyProperties(e.Properties)
			merged.aliases = append([]linkKey(nil), e.aliases...)
			byName[e.Name] = len(out)
			out = append(out, merged)
			continue
		}

		existing := &out[idx]
		if d := strings.TrimSpace(e.Description); d != "" && !strings.Contains(existing.Description, d) {
			if existing.Description == "" {
				existing.Description = d
			} else {
				existing.Description += descriptionSeparator + d
			}
		}
		if existing.Type == "" {
			existing.Type = e.Type
		}
		if len(e.Properties) > 0 {
			if existing.Properties == nil {
				existing.Properties = map[string]interface{}{}
			}
			for k, v := range e.Properties {
				existing.Properties[k] = v
			}
		}
		if e.ID != "" {
			existing.aliases = append(existing.aliases, linkKey{chunk: e.chunk, id: e.ID})
		}
		existing.aliases = append(existing.aliases, e.aliases...)
	}
	return out
}

func copyProperties(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// BuildKnowledgeBase turns standardized entities and raw relations into store items: entities first,
// then relations. Entities keep the model's id unless it is missing or taken, in which case they get
// entity_{n}. Relations get relation_{n}. Endpoints are linked by entity name, then by the id the model
// used in the same chunk, then by a model-supplied id that survived unchanged; anything else, including
// ids generated here, stays an unresolved reference.
func BuildKnowledgeBase(entities []RawEntity, relations []RawRelation) []knowledge.Item {
	items := make([]knowledge.Item, 0, len(entities)+len(relations))
	used := map[string]struct{}{}
	keptIDs := map[string]struct{}{}
	byName := map[string]string{}
	byLink := map[linkKey]string{}

	for n, e := range entities {
		id := strings.TrimSpace(e.ID)
		if _, taken := used[id]; id == "" || taken {
			id = freeID(used, "entity", n+1)
		} else {
			keptIDs[id] = struct{}{}
		}
		used[id] = struct{}{}

		if _, ok := byName[e.Name]; !ok && e.Name != "" {
			byName[e.Name] = id
		}
		if e.ID != "" {
			if _, ok := byLink[linkKey{e.chunk, e.ID}]; !ok {
				byLink[linkKey{e.chunk, e.ID}] = id
			}
		}
		for _, alias := range e.aliases {
			if _, ok := byLink[alias]; !ok {
				byLink[alias] = id
			}
		}

		typ := strings.TrimSpace(e.Type)
		if typ == "" {
			typ = string(knowledge.KindEntity)
		}
		items = append(items, knowledge.EntityItem(knowledge.Entity{
			ID:          id,
			Type:        typ,
			Name:        e.Name,
			Description: e.Description,
			Properties:  e.Properties,
		}))
	}

	resolve := func(raw string, chunk int) knowledge.Endpoint {
		if id, ok := byName[raw]; ok {
			return knowledge.Ref(id)
		}
		if id, ok := byLink[linkKey{chunk, raw}]; ok {
			return knowledge.Ref(id)
		}
		if _, ok := keptIDs[raw]; ok {
			return knowledge.Ref(raw)
		}
		return knowledge.Unresolved(raw)
	}

	for n, r := range relations {
		id := freeID(used, "relation", n+1)
		used[id] = struct{}{}
		items = append(items, knowledge.RelationItem(knowledge.Relation{
			ID:           id,
			Source:       resolve(r.Source, r.chunk),
			Target:       resolve(r.Target, r.chunk),
			RelationType: r.RelationType,
			Description:  r.Description,
		}))
	}
	return items
}

func freeID(used map[string]struct{}, prefix string, n int) string {
	for {
		id := fmt.Sprintf("%s_%d", prefix, n)
		if _, taken := used[id]; !taken {
			return id
		}
		n++
	}
}
