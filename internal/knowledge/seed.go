package knowledge

// SeedItems returns the built-in regional sales knowledge set: four entities and three relations.
func SeedItems() []Item {
	return []Item{
		EntityItem(Entity{
			ID:          "entity_1",
			Type:        "region",
			Name:        "East China Region",
			Description: "East China is a key sales region covering Shanghai, Jiangsu and Zhejiang",
			Properties:  map[string]interface{}{"region_code": "HD", "established_year": 2015},
		}),
		EntityItem(Entity{
			ID:          "entity_2",
			Type:        "product",
			Name:        "Flagship Phone Series",
			Description: "Core product line targeting the high-end market",
			Properties:  map[string]interface{}{"category": "phone", "price_range": "high-end"},
		}),
		EntityItem(Entity{
			ID:          "entity_3",
			Type:        "event",
			Name:        "Partner Optimization Plan",
			Description: "In Q3 the East China region launched a partner optimization plan that put 35% of core distributors into contract renegotiation",
			Properties:  map[string]interface{}{"time": "Q3", "impact": "high"},
		}),
		EntityItem(Entity{
			ID:          "entity_4",
			Type:        "event",
			Name:        "Logistics Center Upgrade",
			Description: "The Shanghai logistics center upgrade reduced flagship series turnover",
			Properties:  map[string]interface{}{"location": "Shanghai", "time": "Q3"},
		}),
		RelationItem(Relation{
			ID:           "relation_1",
			Source:       Ref("entity_1"),
			Target:       Ref("entity_3"),
			RelationType: "occurred",
			Description:  "East China region launched the partner optimization plan in Q3",
		}),
		RelationItem(Relation{
			ID:           "relation_2",
			Source:       Ref("entity_1"),
			Target:       Ref("entity_4"),
			RelationType: "contains",
			Description:  "East China region contains the Shanghai logistics center",
		}),
		RelationItem(Relation{
			ID:           "relation_3",
			Source:       Ref("entity_3"),
			Target:       Ref("entity_2"),
			RelationType: "affects",
			Description:  "The partner optimization plan hurt flagship phone sales",
		}),
	}
}
