package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pageharvest/pkg/models"
)

type fakeStore map[string]bool

func (f fakeStore) Exists(id string) bool { return f[id] }

func items(ids ...string) []models.WorkItem {
	out := make([]models.WorkItem, len(ids))
	for i, id := range ids {
		out[i] = models.WorkItem{ID: id}
	}
	return out
}

func idsOf(items []models.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestPlanFiltersAndKeepsOrder(t *testing.T) {
	manifest := items("E", "A", "D", "B", "C")
	store := fakeStore{"A": true, "B": true}

	plan := Plan(manifest, store)
	assert.Equal(t, []string{"E", "D", "C"}, idsOf(plan))
}

func TestPlanDedupProperty(t *testing.T) {
	manifest := items("1", "2", "3", "4", "5", "6")
	stores := []fakeStore{
		{},
		{"1": true, "2": true, "3": true, "4": true, "5": true, "6": true},
		{"2": true, "4": true, "6": true},
		{"unrelated": true},
	}

	for _, store := range stores {
		plan := Plan(manifest, store)
		inPlan := map[string]bool{}
		for _, it := range plan {
			inPlan[it.ID] = true
		}
		for _, it := range manifest {
			assert.Equal(t, !store.Exists(it.ID), inPlan[it.ID], "item %s", it.ID)
		}
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	manifest := items("A", "B")
	_ = Plan(manifest, fakeStore{"A": true})
	assert.Equal(t, []string{"A", "B"}, idsOf(manifest))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeEmptyManifest, Classify(0, 0))
	assert.Equal(t, OutcomeAllHarvested, Classify(3, 0))
	assert.Equal(t, OutcomeWork, Classify(3, 1))
	assert.NotEqual(t, OutcomeEmptyManifest.Message(), OutcomeAllHarvested.Message())
	assert.Empty(t, OutcomeWork.Message())
}
