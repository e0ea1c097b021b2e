package entity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workspaceListWith(workbench string) []byte {
	return []byte(fmt.Sprintf(`{"workspace-list":[{"userid":"u1","region":"us-central1","workspace-setup-status":"DONE","workbench-list":[%s]}]}`, workbench))
}

func TestDeserializeEnvironments(t *testing.T) {
	data := workspaceListWith(`{
		"id": "wb-1",
		"group-granting-data-access": "mimic-demo",
		"region": "us-central1",
		"machine-type": "n1-standard-2",
		"type": "jypyternotebook",
		"workbench-setup-status": "running",
		"bucket-name": "mimic-demo-bucket",
		"url": "https://wb-1.notebooks.example.com"
	}`)

	envs, err := DeserializeEnvironments(data)
	require.NoError(t, err)
	require.Len(t, envs, 1)

	env := envs[0]
	assert.Equal(t, "wb-1", env.ID)
	assert.Equal(t, "mimic-demo", env.Group)
	assert.Equal(t, RegionUSCentral, env.Region)
	assert.Equal(t, InstanceN1Standard2, env.InstanceType)
	assert.Equal(t, EnvironmentTypeJupyter, env.Type)
	assert.True(t, env.IsRunning())
	assert.True(t, env.IsActive())
}

func TestDeserializeVersionURLFallback(t *testing.T) {
	// RStudio sends version-url instead of url, without a scheme
	data := workspaceListWith(`{
		"id": "wb-2",
		"group-granting-data-access": "g",
		"region": "europe-west3",
		"machine-type": "n1-standard-1",
		"type": "rstudio",
		"workbench-setup-status": "running",
		"version-url": "abc"
	}`)

	envs, err := DeserializeEnvironments(data)
	require.NoError(t, err)
	assert.Equal(t, "https://abc", envs[0].URL)
}

func TestDeserializeNoURL(t *testing.T) {
	data := workspaceListWith(`{
		"id": "wb-3",
		"group-granting-data-access": "g",
		"region": "europe-west3",
		"machine-type": "n1-standard-1",
		"type": "rstudio",
		"workbench-setup-status": "paused"
	}`)

	envs, err := DeserializeEnvironments(data)
	require.NoError(t, err)
	assert.Empty(t, envs[0].URL)
	assert.True(t, envs[0].IsPaused())
}

func TestDeserializeLegacyDatasetKey(t *testing.T) {
	data := workspaceListWith(`{
		"id": "wb-4",
		"dataset": "legacy-group",
		"region": "us-central1",
		"machine-type": "n1-standard-1",
		"type": "rstudio",
		"workbench-setup-status": "running"
	}`)

	envs, err := DeserializeEnvironments(data)
	require.NoError(t, err)
	assert.Equal(t, "legacy-group", envs[0].Group)
}

func TestDeserializeLegacyStatusKey(t *testing.T) {
	data := workspaceListWith(`{
		"id": "wb-5",
		"group-granting-data-access": "g",
		"region": "us-central1",
		"machine-type": "n1-standard-1",
		"type": "jypyternotebook",
		"status": "running"
	}`)

	envs, err := DeserializeEnvironments(data)
	require.NoError(t, err)
	assert.True(t, envs[0].IsRunning())
}

func TestDeserializeUnknownTypeAndStatus(t *testing.T) {
	// an unrecognized type or status is not a parse failure
	data := workspaceListWith(`{
		"id": "wb-6",
		"group-granting-data-access": "g",
		"region": "us-central1",
		"machine-type": "n1-standard-1",
		"type": "matlab",
		"workbench-setup-status": "exploded"
	}`)

	envs, err := DeserializeEnvironments(data)
	require.NoError(t, err)
	assert.Equal(t, EnvironmentTypeUnknown, envs[0].Type)
	assert.Equal(t, EnvironmentStatusUnknown, envs[0].Status)
	assert.False(t, envs[0].IsActive())
}

func TestDeserializeUnknownRegionFails(t *testing.T) {
	data := workspaceListWith(`{
		"id": "wb-7",
		"group-granting-data-access": "g",
		"region": "mars-north1",
		"machine-type": "n1-standard-1",
		"type": "rstudio",
		"workbench-setup-status": "running"
	}`)

	_, err := DeserializeEnvironments(data)
	assert.Error(t, err)
}

func TestDeserializeUnknownMachineTypeFails(t *testing.T) {
	data := workspaceListWith(`{
		"id": "wb-8",
		"group-granting-data-access": "g",
		"region": "us-central1",
		"machine-type": "quantum-1",
		"type": "rstudio",
		"workbench-setup-status": "running"
	}`)

	_, err := DeserializeEnvironments(data)
	assert.Error(t, err)
}

func TestDeserializeWorkspaces(t *testing.T) {
	data := []byte(`{"workspace-list":[
		{"userid":"u1","region":"us-central1","gcp-project-id":"proj-1","billing-id":"ABCDEF-ABCDEF-ABCDEF","email-id":"u1@example.com","workspace-setup-status":"DONE"},
		{"userid":"u1","region":"europe-west3","workspace-setup-status":"RETRYING"}
	]}`)

	workspaces, err := DeserializeWorkspaces(data)
	require.NoError(t, err)
	require.Len(t, workspaces, 2)
	assert.True(t, workspaces[0].SetupDone())
	assert.Equal(t, WorkspaceRetrying, workspaces[1].Status)
	assert.False(t, workspaces[1].SetupDone())
}

func TestExecutionState(t *testing.T) {
	assert.False(t, ExecutionActive.Finished())
	assert.True(t, ExecutionSucceeded.Finished())
	assert.True(t, ExecutionSucceeded.Succeeded())
	assert.True(t, ExecutionFailed.Finished())
	assert.False(t, ExecutionFailed.Succeeded())
	assert.True(t, ExecutionCancelled.Finished())
}
