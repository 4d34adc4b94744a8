package selection

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCommand struct {
	dir  string
	name string
	args []string
}

func fakeRunner(output string, err error, calls *[]recordedCommand) CommandRunner {
	return func(_ context.Context, dir, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recordedCommand{dir: dir, name: name, args: args})

		return []byte(output), err
	}
}

func TestDbtResolver_Resolve(t *testing.T) {
	var calls []recordedCommand

	r := NewDbtResolver(DbtConfig{ProjectDir: "jaffle", ProfilesDir: "profiles", Target: "prod"},
		fakeRunner("jaffle_shop.orders\njaffle_shop.revenue\n\n", nil, &calls), nil)

	nodes, err := r.Resolve(context.Background(), "orders+")
	require.NoError(t, err)
	assert.Equal(t, []string{"jaffle_shop.orders", "jaffle_shop.revenue"}, nodes)

	require.Len(t, calls, 1)
	assert.Equal(t, "dbt", calls[0].name)
	assert.Equal(t, "jaffle", calls[0].dir)

	projectDir, _ := filepath.Abs("jaffle")
	profilesDir, _ := filepath.Abs("profiles")
	assert.Equal(t, []string{
		"--log-format", "text", "-q", "ls", "-s", "orders+",
		"--project-dir", projectDir,
		"--profiles-dir", profilesDir,
		"--target", "prod",
	}, calls[0].args)
}

func TestDbtResolver_NoMatches(t *testing.T) {
	var calls []recordedCommand

	output := `{"info": {"msg": "No nodes selected!"}}` + "\n" +
		`{"info": {"msg": "The selection criterion 'x' does not match any nodes"}}` + "\n"

	r := NewDbtResolver(DbtConfig{Executable: "/opt/dbt"}, fakeRunner(output, nil, &calls), nil)

	nodes, err := r.Resolve(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.NotNil(t, nodes)
	assert.Equal(t, "/opt/dbt", calls[0].name)
	assert.Equal(t, []string{"--log-format", "text", "-q", "ls", "-s", "x"}, calls[0].args)
}

func TestDbtResolver_CommandError(t *testing.T) {
	var calls []recordedCommand

	r := NewDbtResolver(DbtConfig{}, fakeRunner("", errors.New("exit status 2"), &calls), nil)

	_, err := r.Resolve(context.Background(), "orders")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDbtLs)
	assert.Contains(t, err.Error(), "orders")
}
