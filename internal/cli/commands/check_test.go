package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

func TestLocalNode(t *testing.T) {
	tests := []struct {
		id          string
		wantErr     bool
		wantName    string
		wantVersion string
	}{
		{id: "model.reporting.kpis", wantName: "kpis"},
		{id: "model.reporting.kpis.v2", wantName: "kpis", wantVersion: "2"},
		{id: "kpis", wantErr: true},
		{id: "model..kpis", wantErr: true},
		{id: "model.reporting.kpis.extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			n, err := localNode(tt.id, "finance")
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid unique id")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, n.UniqueID)
			assert.Equal(t, core.ResourceModel, n.ResourceType)
			assert.Equal(t, "reporting", n.PackageName)
			assert.Equal(t, tt.wantName, n.Name)
			assert.Equal(t, tt.wantVersion, n.Version)
			assert.Equal(t, "finance", n.Group)
			assert.Equal(t, core.AccessProtected, n.Access)
		})
	}
}
