package filters

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	nodes    []string
	err      error
	selected []string
}

func (m *mockResolver) Resolve(_ context.Context, selector string) ([]string, error) {
	m.selected = append(m.selected, selector)

	return m.nodes, m.err
}

func assertDefaultStatuses(t *testing.T, fs *FilterSet) {
	t.Helper()

	require.Len(t, fs.Statuses, 1)
	assert.Equal(t, OperatorIs, fs.Statuses[0].Operator)
	assert.ElementsMatch(t, DefaultStatuses(), fs.Statuses[0].Values)
}

func TestFromCLIParams_Empty(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Empty(t, fs.Tags)
	assert.Empty(t, fs.Owners)
	assert.Empty(t, fs.Models)
	assert.Empty(t, fs.ResourceTypes)
	assert.Nil(t, fs.NodeNames)
	assertDefaultStatuses(t, fs)
}

func TestFromCLIParams_Tags(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), []string{"tags:a,b", "tags:c"}, nil)
	require.NoError(t, err)

	require.Len(t, fs.Tags, 2)
	assert.Equal(t, []string{"a", "b"}, fs.Tags[0].Values)
	assert.Equal(t, OperatorIs, fs.Tags[0].Operator)
	assert.Equal(t, []string{"c"}, fs.Tags[1].Values)
	assert.Equal(t, OperatorIs, fs.Tags[1].Operator)
	assertDefaultStatuses(t, fs)
}

func TestFromCLIParams_OwnersAndModels(t *testing.T) {
	fs, err := FromCLIParams(context.Background(),
		[]string{"owners:freddy, dredd", "models:customers", "models:orders"}, nil)
	require.NoError(t, err)

	require.Len(t, fs.Owners, 1)
	assert.Equal(t, []string{"freddy", "dredd"}, fs.Owners[0].Values)
	require.Len(t, fs.Models, 2)
	assert.Equal(t, []string{"customers"}, fs.Models[0].Values)
	assert.Equal(t, []string{"orders"}, fs.Models[1].Values)
	assert.Empty(t, fs.Tags)
}

func TestFromCLIParams_ExcludesFollowIncludes(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), []string{"tags:a"}, []string{"tags:b"})
	require.NoError(t, err)

	require.Len(t, fs.Tags, 2)
	assert.Equal(t, Is("a"), fs.Tags[0])
	assert.Equal(t, IsNot("b"), fs.Tags[1])
}

func TestFromCLIParams_Statuses(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), []string{"statuses:warn", "statuses:fail"}, nil)
	require.NoError(t, err)

	require.Len(t, fs.Statuses, 2)
	assert.Equal(t, []Status{StatusWarn}, fs.Statuses[0].Values)
	assert.Equal(t, []Status{StatusFail}, fs.Statuses[1].Values)

	fs, err = FromCLIParams(context.Background(), []string{"statuses:runtime error,error"}, nil)
	require.NoError(t, err)

	require.Len(t, fs.Statuses, 1)
	assert.Equal(t, []Status{StatusRuntimeError, StatusError}, fs.Statuses[0].Values)
}

func TestFromCLIParams_ExcludedStatusesKeepDefaults(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), nil, []string{"statuses:fail"})
	require.NoError(t, err)

	require.Len(t, fs.Statuses, 2)
	assert.Equal(t, IsNot(StatusFail), fs.Statuses[0])
	assert.Equal(t, OperatorIs, fs.Statuses[1].Operator)
	assert.ElementsMatch(t, DefaultStatuses(), fs.Statuses[1].Values)
}

func TestFromCLIParams_InvalidEnumsAreFatal(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		target  error
	}{
		{"unknown status", []string{"statuses:freddy"}, ErrInvalidStatus},
		{"one bad status", []string{"statuses:warn,freddy"}, ErrInvalidStatus},
		{"bad second clause", []string{"statuses:warn", "statuses:freddy"}, ErrInvalidStatus},
		{"unknown resource type", []string{"resource_types:freddy"}, ErrInvalidResourceType},
		{"one bad resource type", []string{"resource_types:test,freddy"}, ErrInvalidResourceType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromCLIParams(context.Background(), tt.filters, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target))
		})
	}
}

func TestFromCLIParams_ResourceTypes(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), []string{"resource_types:test,model"}, []string{"resource_types:source_freshness"})
	require.NoError(t, err)

	require.Len(t, fs.ResourceTypes, 2)
	assert.Equal(t, Is(ResourceTypeTest, ResourceTypeModel), fs.ResourceTypes[0])
	assert.Equal(t, IsNot(ResourceTypeSourceFreshness), fs.ResourceTypes[1])
	assertDefaultStatuses(t, fs)
}

func TestFromCLIParams_UnsupportedKeysAreSkipped(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), []string{"fake", "colors:red", "tags:"}, nil)
	require.NoError(t, err)

	assert.Empty(t, fs.Tags)
	assert.Empty(t, fs.Owners)
	assert.Empty(t, fs.Models)
	assertDefaultStatuses(t, fs)
}

func TestFromCLIParams_GraphOperatorsUseResolver(t *testing.T) {
	resolver := &mockResolver{nodes: []string{"model.customers", "model.orders", "model.payments"}}

	fs, err := FromCLIParams(context.Background(), []string{"models:customers+"}, nil, WithNodeResolver(resolver))
	require.NoError(t, err)

	assert.Empty(t, fs.Models)
	assert.ElementsMatch(t, []string{"model.customers", "model.orders", "model.payments"}, fs.NodeNames)
	assert.Equal(t, []string{"customers+"}, resolver.selected)
	assertDefaultStatuses(t, fs)
}

func TestFromCLIParams_GraphOperatorsWithoutResolverStayLiteral(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), []string{"models:+customers"}, nil)
	require.NoError(t, err)

	require.Len(t, fs.Models, 1)
	assert.Equal(t, []string{"+customers"}, fs.Models[0].Values)
	assert.Nil(t, fs.NodeNames)
}

func TestFromCLIParams_MixedGraphAndLiteralModels(t *testing.T) {
	resolver := &mockResolver{nodes: []string{"model.raw_orders", "model.orders"}}

	fs, err := FromCLIParams(context.Background(), []string{"models:+orders,customers"}, nil, WithNodeResolver(resolver))
	require.NoError(t, err)

	require.Len(t, fs.Models, 1)
	assert.Equal(t, []string{"customers"}, fs.Models[0].Values)
	assert.Equal(t, []string{"model.raw_orders", "model.orders"}, fs.NodeNames)
}

func TestFromCLIParams_ExcludedGraphOperatorsUseResolver(t *testing.T) {
	resolver := &mockResolver{nodes: []string{"model.raw_orders", "model.orders"}}

	fs, err := FromCLIParams(context.Background(),
		[]string{"tags:finance"}, []string{"models:+orders,customers"}, WithNodeResolver(resolver))
	require.NoError(t, err)

	assert.Nil(t, fs.NodeNames)
	assert.Equal(t, []string{"model.raw_orders", "model.orders"}, fs.ExcludedNodeNames)
	assert.Equal(t, []string{"+orders"}, resolver.selected)
	require.Len(t, fs.Models, 1)
	assert.Equal(t, Criterion[string]{Values: []string{"customers"}, Operator: OperatorIsNot}, fs.Models[0])
}

func TestFromCLIParams_ExcludedGraphOperatorsWithoutResolverStayLiteral(t *testing.T) {
	fs, err := FromCLIParams(context.Background(), nil, []string{"models:+orders"})
	require.NoError(t, err)

	require.Len(t, fs.Models, 1)
	assert.Equal(t, Criterion[string]{Values: []string{"+orders"}, Operator: OperatorIsNot}, fs.Models[0])
	assert.Nil(t, fs.ExcludedNodeNames)
}

func TestFromCLIParams_ResolverErrorIsReturned(t *testing.T) {
	resolver := &mockResolver{err: errors.New("dbt not installed")}

	_, err := FromCLIParams(context.Background(), []string{"models:@orders"}, nil, WithNodeResolver(resolver))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "@orders")
}

func TestHasGraphOperator(t *testing.T) {
	for value, want := range map[string]bool{
		"customers":   false,
		"customers+":  true,
		"+customers":  true,
		"2+customers": true,
		"customers+3": true,
		"@customers":  true,
		"cust+omers":  false,
		"model_2":     false,
	} {
		assert.Equal(t, want, hasGraphOperator(value), value)
	}
}
