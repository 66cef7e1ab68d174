package neo4j

import (
	"fmt"
	"sort"

	"github.com/torenunez/lerni/internal/storage/models"
)

type statement struct {
	cypher string
	params map[string]any
}

// Relationship types cannot be query parameters, so they come from this
// closed table and nowhere else.
var relTypes = map[models.Relationship]string{
	models.RelParent:       "CHILD_OF",
	models.RelPrerequisite: "REQUIRES",
	models.RelRelated:      "RELATED_TO",
}

// RelType maps an edge kind onto its Neo4j relationship type.
func RelType(rel models.Relationship) (string, error) {
	t, ok := relTypes[rel]
	if !ok {
		return "", fmt.Errorf("%w: relationship %q", models.ErrUnknownTag, rel)
	}
	return t, nil
}

func conceptParams(c *models.Concept) map[string]any {
	aliases := c.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"aliases":     aliases,
		"description": c.Description,
		"created_at":  c.CreatedAt.UnixMilli(),
	}
}

func putConcept(c *models.Concept) statement {
	return statement{
		cypher: `
			MERGE (c:Concept {id: $id})
			SET c.name = $name,
			    c.aliases = $aliases,
			    c.description = $description,
			    c.created_at = $created_at
		`,
		params: conceptParams(c),
	}
}

func deleteConcept(id string) statement {
	return statement{
		cypher: `MATCH (c:Concept {id: $id}) DETACH DELETE c`,
		params: map[string]any{"id": id},
	}
}

func putEdge(e models.ConceptEdge) (statement, error) {
	relType, err := RelType(e.Relationship)
	if err != nil {
		return statement{}, err
	}
	return statement{
		cypher: fmt.Sprintf(`
			MATCH (a:Concept {id: $from})
			MATCH (b:Concept {id: $to})
			MERGE (a)-[:%s]->(b)
		`, relType),
		params: map[string]any{"from": e.FromConceptID, "to": e.ToConceptID},
	}, nil
}

func deleteEdges(a, b string, rel *models.Relationship) (statement, error) {
	var types []string
	if rel != nil {
		t, err := RelType(*rel)
		if err != nil {
			return statement{}, err
		}
		types = []string{t}
	} else {
		for _, r := range models.Relationships {
			types = append(types, relTypes[r])
		}
	}
	return statement{
		cypher: `
			MATCH (a:Concept {id: $a})-[r]-(b:Concept {id: $b})
			WHERE type(r) IN $types
			DELETE r
		`,
		params: map[string]any{"a": a, "b": b, "types": types},
	}, nil
}

func replaceAll(concepts []models.Concept, edges []models.ConceptEdge) ([]statement, error) {
	rows := make([]map[string]any, 0, len(concepts))
	for i := range concepts {
		rows = append(rows, conceptParams(&concepts[i]))
	}

	statements := []statement{
		{cypher: `MATCH (c:Concept) DETACH DELETE c`},
		{
			cypher: `
				UNWIND $rows AS row
				CREATE (c:Concept)
				SET c = row
			`,
			params: map[string]any{"rows": rows},
		},
	}

	byType := make(map[string][]map[string]any)
	for _, e := range edges {
		t, err := RelType(e.Relationship)
		if err != nil {
			return nil, err
		}
		byType[t] = append(byType[t], map[string]any{"from": e.FromConceptID, "to": e.ToConceptID})
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		statements = append(statements, statement{
			cypher: fmt.Sprintf(`
				UNWIND $edges AS edge
				MATCH (a:Concept {id: edge.from})
				MATCH (b:Concept {id: edge.to})
				CREATE (a)-[:%s]->(b)
			`, t),
			params: map[string]any{"edges": byType[t]},
		})
	}
	return statements, nil
}
