package engine

import (
	"fmt"
	"sort"
)

// RelationSemanticSimilarity is the relation type written by inference.
const RelationSemanticSimilarity = "semantic_similarity"

// similarFloor is the similarity cutoff for ad-hoc similarity queries.
// Looser than the 0.80 threshold relations must clear to be persisted.
const similarFloor = 0.75

// Neighbor is one scored candidate from a similarity scan.
type Neighbor struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Similarity float64 `json:"similarity"`

	createdAt string
}

// scanNeighbors scores every candidate vector against vec and returns those
// at or above minSimilarity, strongest first. Ties break toward the older
// candidate so results are stable across runs.
func (e *Engine) scanNeighbors(objectID, objectType string, vec []float64, minSimilarity float64) ([]Neighbor, error) {
	candidates, err := e.DB.CandidateVectors(e.Governor.CompatibleTypes(objectType), objectID, e.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("load candidate vectors: %w", err)
	}

	var neighbors []Neighbor
	for _, c := range candidates {
		sim := CosineSimilarity(vec, c.Embedding)
		if sim < minSimilarity {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			ID:         c.ObjectID,
			Type:       c.Type,
			Similarity: sim,
			createdAt:  c.CreatedAt,
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].createdAt < neighbors[j].createdAt
	})
	return neighbors, nil
}

// inferRelations scans compatible-type candidates for the freshly admitted
// object, validates each through the governor, and persists the strongest
// TopK as semantic_similarity relations. Returns the number persisted.
func (e *Engine) inferRelations(objectID, objectType string, vec []float64) (int, error) {
	neighbors, err := e.scanNeighbors(objectID, objectType, vec, 0)
	if err != nil {
		return 0, err
	}

	persisted := 0
	for _, n := range neighbors {
		if persisted >= e.TopK {
			break
		}
		ok, _ := e.Governor.ValidateRelation(objectType, n.Type, n.Similarity)
		if !ok {
			continue
		}
		if _, err := e.DB.SaveRelation(objectID, n.ID, RelationSemanticSimilarity, round3(n.Similarity)); err != nil {
			return persisted, fmt.Errorf("save relation %s -> %s: %w", objectID, n.ID, err)
		}
		persisted++
	}
	return persisted, nil
}

// FindSimilar returns up to topK objects semantically similar to the given
// one, without persisting anything. Uses a looser similarity floor than
// relation inference, so near-misses still surface in exploration.
func (e *Engine) FindSimilar(objectID string, topK int) ([]Neighbor, error) {
	if topK <= 0 {
		topK = e.TopK
	}

	obj, err := e.DB.GetObject(objectID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("object %s: %w", objectID, ErrNotFound)
	}
	rec, err := e.DB.GetVector(objectID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no vector for object %s: %w", objectID, ErrNotFound)
	}

	neighbors, err := e.scanNeighbors(objectID, obj.Type, rec.Embedding, similarFloor)
	if err != nil {
		return nil, err
	}
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	for i := range neighbors {
		neighbors[i].Similarity = round3(neighbors[i].Similarity)
	}
	return neighbors, nil
}
