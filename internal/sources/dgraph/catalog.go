// Package dgraph reads the exercise catalog from Dgraph's HTTP API.
package dgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"example.com/coachcontext/internal/domain"
)

const defaultLimit = 500

// Catalog implements domain.CatalogSource over Dgraph.
type Catalog struct {
	endpoint   string
	httpClient *http.Client
	limit      int
}

// NewCatalog constructs the catalog reader. limit caps the number of
// exercises returned; zero selects the default.
func NewCatalog(endpoint string, timeout time.Duration, limit int) *Catalog {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Catalog{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limit: limit,
	}
}

// FetchCatalog returns every Exercise node, normalised and ordered by name.
// The catalog is shared, so the user id does not narrow the query.
func (c *Catalog) FetchCatalog(ctx context.Context, _ string) ([]domain.Exercise, error) {
	query := fmt.Sprintf(`{
  exercises(func: type(Exercise), first: %d, orderasc: name) {
    exercise_id
    name
    category
    body_region
    difficulty
    targets
    requires
    is_compound
  }
}`, c.limit)

	result, err := c.executeQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	exercises := make([]domain.Exercise, 0, len(result.Exercises))
	seen := make(map[string]struct{}, len(result.Exercises))
	for _, node := range result.Exercises {
		ex := node.toDomain()
		if ex.ID == "" {
			continue
		}
		// Dgraph may hold duplicate nodes for one exercise_id after concurrent upserts.
		if _, dup := seen[ex.ID]; dup {
			continue
		}
		seen[ex.ID] = struct{}{}
		exercises = append(exercises, ex)
	}
	sort.SliceStable(exercises, func(i, j int) bool { return exercises[i].Name < exercises[j].Name })
	return exercises, nil
}

type queryResponse struct {
	Exercises []exerciseNode `json:"exercises"`
}

type exerciseNode struct {
	ExerciseID string   `json:"exercise_id"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	BodyRegion string   `json:"body_region"`
	Difficulty string   `json:"difficulty"`
	Targets    []string `json:"targets"`
	Requires   []string `json:"requires"`
	IsCompound bool     `json:"is_compound"`
}

func (node exerciseNode) toDomain() domain.Exercise {
	muscles := domain.DedupeFold(node.Targets)
	category := strings.ToLower(strings.TrimSpace(node.Category))
	if category == "" {
		category = domain.InferCategory(node.BodyRegion, muscles...)
	}
	equipment := make([]string, 0, len(node.Requires))
	for _, item := range domain.DedupeFold(node.Requires) {
		if !strings.EqualFold(item, "none") {
			equipment = append(equipment, item)
		}
	}
	return domain.Exercise{
		ID:           strings.TrimSpace(node.ExerciseID),
		Name:         strings.TrimSpace(node.Name),
		Category:     category,
		MuscleGroups: muscles,
		Equipment:    equipment,
		Difficulty:   domain.NormalizeDifficulty(node.Difficulty),
		IsCompound:   node.IsCompound,
	}
}

func (c *Catalog) executeQuery(ctx context.Context, query string) (queryResponse, error) {
	payload, err := json.Marshal(map[string]interface{}{"query": query})
	if err != nil {
		return queryResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/query", bytes.NewReader(payload))
	if err != nil {
		return queryResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return queryResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return queryResponse{}, fmt.Errorf("dgraph query failed: %s", resp.Status)
	}

	var wrapper struct {
		Data   queryResponse `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return queryResponse{}, err
	}
	if len(wrapper.Errors) > 0 {
		return queryResponse{}, fmt.Errorf("dgraph query failed: %s", wrapper.Errors[0].Message)
	}
	return wrapper.Data, nil
}
