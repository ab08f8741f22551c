package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"loadsignal.dev/collector/internal/db"
)

var entityCategories = []string{"companies", "ports", "people", "organizations"}

// EntityCount is one ranked entity.
type EntityCount struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EntityGraph is the co-occurrence graph in node/edge form.
type EntityGraph struct {
	Nodes []EntityNode `json:"nodes"`
	Edges []EntityEdge `json:"edges"`
}

type EntityNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type EntityEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// loadEntities streams the entities column of recent articles.
func (s *Service) loadEntities(ctx context.Context, days int) ([]map[string][]string, error) {
	if days < 1 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var rows []db.Article
	err := s.pool.GORM().WithContext(ctx).
		Select("entities").
		Where("entities IS NOT NULL AND published_at >= ?", cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	out := make([]map[string][]string, 0, len(rows))
	for _, row := range rows {
		if len(row.Entities) == 0 {
			continue
		}
		var entities map[string][]string
		if err := json.Unmarshal(row.Entities, &entities); err != nil {
			continue
		}
		out = append(out, entities)
	}
	return out, nil
}

// TopEntities ranks the most mentioned entities, optionally limited to
// one category.
func (s *Service) TopEntities(ctx context.Context, entityType string, days, limit int) ([]EntityCount, error) {
	if limit < 1 {
		limit = 20
	}
	categories := entityCategories
	if entityType != "" {
		categories = []string{entityType}
	}

	rows, err := s.loadEntities(ctx, days)
	if err != nil {
		return nil, err
	}

	type key struct{ name, category string }
	counter := make(map[key]int)
	for _, entities := range rows {
		for _, category := range categories {
			for _, name := range entities[category] {
				trimmed := strings.TrimSpace(name)
				if trimmed == "" {
					continue
				}
				counter[key{trimmed, category}]++
			}
		}
	}

	ranked := make([]EntityCount, 0, len(counter))
	for k, count := range counter {
		ranked = append(ranked, EntityCount{Name: k.name, Type: k.category, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// EntityCooccurrence builds the graph of entities mentioned together in
// the same article.
func (s *Service) EntityCooccurrence(ctx context.Context, days, minCooccurrence, limit int) (EntityGraph, error) {
	if minCooccurrence < 1 {
		minCooccurrence = 2
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := s.loadEntities(ctx, days)
	if err != nil {
		return EntityGraph{}, err
	}

	entityCounter := make(map[string]int)
	entityTypes := make(map[string]string)
	type pair struct{ a, b string }
	edgeCounter := make(map[pair]int)

	for _, entities := range rows {
		var all []string
		for _, category := range entityCategories {
			for _, name := range entities[category] {
				trimmed := strings.TrimSpace(name)
				if trimmed == "" {
					continue
				}
				all = append(all, trimmed)
				entityCounter[trimmed]++
				entityTypes[trimmed] = category
			}
		}

		unique := dedupeSorted(all)
		for i := 0; i < len(unique); i++ {
			for j := i + 1; j < len(unique); j++ {
				edgeCounter[pair{unique[i], unique[j]}]++
			}
		}
	}

	type weightedEdge struct {
		pair
		weight int
	}
	var edges []weightedEdge
	for p, weight := range edgeCounter {
		if weight >= minCooccurrence {
			edges = append(edges, weightedEdge{pair: p, weight: weight})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].weight != edges[j].weight {
			return edges[i].weight > edges[j].weight
		}
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})
	if len(edges) > limit {
		edges = edges[:limit]
	}

	nodeSet := make(map[string]struct{})
	graph := EntityGraph{Nodes: []EntityNode{}, Edges: []EntityEdge{}}
	for _, edge := range edges {
		nodeSet[edge.a] = struct{}{}
		nodeSet[edge.b] = struct{}{}
		graph.Edges = append(graph.Edges, EntityEdge{Source: edge.a, Target: edge.b, Weight: edge.weight})
	}
	for name := range nodeSet {
		graph.Nodes = append(graph.Nodes, EntityNode{
			ID:    name,
			Type:  entityTypes[name],
			Count: entityCounter[name],
		})
	}
	sort.Slice(graph.Nodes, func(i, j int) bool {
		if graph.Nodes[i].Count != graph.Nodes[j].Count {
			return graph.Nodes[i].Count > graph.Nodes[j].Count
		}
		return graph.Nodes[i].ID < graph.Nodes[j].ID
	})
	return graph, nil
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
