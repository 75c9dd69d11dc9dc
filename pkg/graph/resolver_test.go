package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

func unit(id string, lane workunit.Lane, deps ...string) *workunit.WorkUnit {
	return &workunit.WorkUnit{ID: id, Lane: lane, Dependencies: deps}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		units   []*workunit.WorkUnit
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "valid chain",
			units: []*workunit.WorkUnit{
				unit("WP01", workunit.LanePlanned),
				unit("WP02", workunit.LanePlanned, "WP01"),
				unit("WP03", workunit.LanePlanned, "WP02", "WP01"),
			},
		},
		{
			name: "two node cycle",
			units: []*workunit.WorkUnit{
				unit("WP01", workunit.LanePlanned, "WP02"),
				unit("WP02", workunit.LanePlanned, "WP01"),
			},
			wantErr: func(t *testing.T, err error) {
				var cycle *CycleError
				require.ErrorAs(t, err, &cycle)
				assert.Equal(t, []string{"WP01", "WP02", "WP01"}, cycle.Path)
			},
		},
		{
			name: "longer cycle behind a valid prefix",
			units: []*workunit.WorkUnit{
				unit("WP01", workunit.LaneDone),
				unit("WP02", workunit.LanePlanned, "WP01", "WP04"),
				unit("WP03", workunit.LanePlanned, "WP02"),
				unit("WP04", workunit.LanePlanned, "WP03"),
			},
			wantErr: func(t *testing.T, err error) {
				var cycle *CycleError
				require.ErrorAs(t, err, &cycle)
				assert.GreaterOrEqual(t, len(cycle.Path), 4)
				assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
			},
		},
		{
			name: "self reference",
			units: []*workunit.WorkUnit{
				{ID: "WP01", Lane: workunit.LanePlanned, Dependencies: []string{"WP01"}},
			},
			wantErr: func(t *testing.T, err error) {
				var self *SelfReferenceError
				require.ErrorAs(t, err, &self)
				assert.Equal(t, "WP01", self.UnitID)
			},
		},
		{
			name: "dangling reference",
			units: []*workunit.WorkUnit{
				unit("WP01", workunit.LanePlanned),
				unit("WP02", workunit.LanePlanned, "WP09"),
			},
			wantErr: func(t *testing.T, err error) {
				var dangling *DanglingReferenceError
				require.ErrorAs(t, err, &dangling)
				assert.Equal(t, "WP02", dangling.UnitID)
				assert.Equal(t, "WP09", dangling.MissingID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewResolver(tt.units).Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestReadyUnits(t *testing.T) {
	// A has no deps and is Done; B and C depend on A; D depends on B.
	r := NewResolver([]*workunit.WorkUnit{
		unit("WP01", workunit.LaneDone),
		unit("WP02", workunit.LanePlanned, "WP01"),
		unit("WP03", workunit.LanePlanned, "WP01"),
		unit("WP04", workunit.LanePlanned, "WP02"),
	})

	ids := readyIDs(r)
	assert.Equal(t, []string{"WP02", "WP03"}, ids)
}

func TestReadyUnits_ExcludesStartedAndDone(t *testing.T) {
	r := NewResolver([]*workunit.WorkUnit{
		unit("WP01", workunit.LaneDone),
		unit("WP02", workunit.LaneInProgress, "WP01"),
		unit("WP03", workunit.LaneInReview, "WP01"),
		unit("WP04", workunit.LaneDone, "WP01"),
		unit("WP05", workunit.LaneRejected, "WP01"),
		unit("WP06", workunit.LanePlanned, "WP01"),
	})

	// Rejected units may be picked up again; started and finished ones not.
	assert.Equal(t, []string{"WP05", "WP06"}, readyIDs(r))
}

func TestReadyUnits_UnmetDependency(t *testing.T) {
	r := NewResolver([]*workunit.WorkUnit{
		unit("WP01", workunit.LaneInProgress),
		unit("WP02", workunit.LanePlanned, "WP01"),
		unit("WP03", workunit.LanePlanned, "WP07"), // dangling counts as unmet
	})
	assert.Empty(t, readyIDs(r))
}

func TestMergeOrder(t *testing.T) {
	r := NewResolver([]*workunit.WorkUnit{
		unit("WP01", workunit.LaneDone),
		unit("WP02", workunit.LaneDone, "WP01"),
		unit("WP03", workunit.LaneDone, "WP01"),
		unit("WP04", workunit.LaneDone, "WP02", "WP03"),
	})

	order, err := r.MergeOrder([]string{"WP04", "WP03", "WP02", "WP01"})
	require.NoError(t, err)
	assert.Equal(t, []string{"WP01", "WP02", "WP03", "WP04"}, order)

	// Determinism across repeated calls
	again, err := r.MergeOrder([]string{"WP02", "WP04", "WP01", "WP03"})
	require.NoError(t, err)
	assert.Equal(t, order, again)
}

func TestMergeOrder_RestrictedSet(t *testing.T) {
	r := NewResolver([]*workunit.WorkUnit{
		unit("WP01", workunit.LaneDone),
		unit("WP02", workunit.LaneDone, "WP01"),
		unit("WP03", workunit.LaneDone, "WP02"),
	})

	// WP02 is not requested; the WP01->WP02->WP03 chain reduces to two
	// independent units ordered by id.
	order, err := r.MergeOrder([]string{"WP03", "WP01"})
	require.NoError(t, err)
	assert.Equal(t, []string{"WP01", "WP03"}, order)
}

func TestMergeOrder_UnknownUnit(t *testing.T) {
	r := NewResolver([]*workunit.WorkUnit{unit("WP01", workunit.LaneDone)})
	_, err := r.MergeOrder([]string{"WP01", "WP99"})
	var unknown *UnknownUnitError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "WP99", unknown.UnitID)
}

func TestMergeOrder_DependencyAlwaysBeforeDependent(t *testing.T) {
	r := NewResolver([]*workunit.WorkUnit{
		unit("WP01", workunit.LaneDone),
		unit("WP02", workunit.LaneDone, "WP01"),
		unit("WP03", workunit.LaneDone, "WP01"),
		unit("WP04", workunit.LaneDone, "WP03"),
		unit("WP05", workunit.LaneDone, "WP02", "WP04"),
	})

	order, err := r.MergeOrder([]string{"WP05", "WP04", "WP03", "WP02", "WP01"})
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, id := range order {
		for _, dep := range r.Unit(id).Dependencies {
			if _, ok := pos[dep]; ok {
				assert.Less(t, pos[dep], pos[id], "%s must precede %s", dep, id)
			}
		}
	}
}

func TestClassifyMultiParent(t *testing.T) {
	r := NewResolver([]*workunit.WorkUnit{
		unit("WP01", workunit.LaneDone),
		unit("WP02", workunit.LaneDone),
		unit("WP03", workunit.LaneInProgress),
		unit("WP04", workunit.LanePlanned),
		unit("WP05", workunit.LanePlanned, "WP01", "WP02"),
		unit("WP06", workunit.LanePlanned, "WP01", "WP03"),
		unit("WP07", workunit.LanePlanned, "WP03", "WP04"),
		unit("WP08", workunit.LanePlanned, "WP01"),
	})

	cls, err := r.ClassifyMultiParent("WP05")
	require.NoError(t, err)
	assert.Equal(t, ParentsAllDone, cls)

	cls, err = r.ClassifyMultiParent("WP06")
	require.NoError(t, err)
	assert.Equal(t, ParentsMixed, cls)

	cls, err = r.ClassifyMultiParent("WP07")
	require.NoError(t, err)
	assert.Equal(t, ParentsNonePending, cls)

	_, err = r.ClassifyMultiParent("WP08")
	assert.ErrorIs(t, err, ErrNotMultiParent)

	_, err = r.ClassifyMultiParent("WP99")
	var unknown *UnknownUnitError
	assert.ErrorAs(t, err, &unknown)
}

func readyIDs(r *Resolver) []string {
	var ids []string
	for _, u := range r.ReadyUnits() {
		ids = append(ids, u.ID)
	}
	return ids
}
