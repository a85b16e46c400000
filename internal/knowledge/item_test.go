package knowledge

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItemJSONIsFlat(t *testing.T) {
	data, err := json.Marshal(SeedItems()[4])
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": "relation_1",
		"type": "relation",
		"source": "entity_1",
		"target": "entity_3",
		"relation_type": "occurred",
		"description": "East China region launched the partner optimization plan in Q3"
	}`, string(data))

	unresolved := RelationItem(Relation{ID: "r", Source: Ref("entity_1"), Target: Unresolved("Nanjing Depot"), RelationType: "supplies"})
	data, err = json.Marshal(unresolved)
	require.NoError(t, err)
	var back Item
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, KindRelation, back.Kind)
	require.True(t, back.Relation.Source.Resolved)
	require.False(t, back.Relation.Target.Resolved)
	require.Equal(t, "Nanjing Depot", back.Relation.Target.ID)
}

func TestDecodeYAMLKnowledgeFile(t *testing.T) {
	doc := []byte(`
- id: entity_1
  type: region
  name: East China Region
  description: key sales region
  properties:
    region_code: HD
- id: relation_1
  type: relation
  source: entity_1
  target: Hangzhou Hub
  unresolved_target: true
  relation_type: contains
  description: region contains hub
`)
	items, err := Decode(doc)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, KindEntity, items[0].Kind)
	require.Equal(t, "HD", items[0].Entity.Properties["region_code"])
	require.Equal(t, Unresolved("Hangzhou Hub"), items[1].Relation.Target)
}

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"kb.yaml", "kb.json"} {
		path := filepath.Join(dir, "nested", name)
		require.NoError(t, WriteFile(path, SeedItems()))
		items, err := ReadFile(path)
		require.NoError(t, err)
		require.Len(t, items, len(SeedItems()))
		require.Equal(t, "Partner Optimization Plan", items[2].Entity.Name)
		require.Equal(t, Ref("entity_2"), items[6].Relation.Target)
	}
}

func TestDecodeRejectsMissingIDs(t *testing.T) {
	_, err := Decode([]byte(`[{"type": "region", "name": "no id"}]`))
	require.ErrorIs(t, err, ErrInvalidItem)
}
