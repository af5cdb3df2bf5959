package di

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTest = stderrors.New("factory failed")

type dialect struct {
	Name string
}

type connection struct {
	Dialect *dialect
}

type repository struct {
	Conn *connection
}

func newConnection(d *dialect) *connection {
	return &connection{Dialect: d}
}

func newRepository(conn *connection) *repository {
	return &repository{Conn: conn}
}

func TestResolveBuildsDependencyChain(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("di.dialect", &dialect{Name: "sqlite"}))
	require.NoError(t, c.RegisterConstructor(newConnection))
	require.NoError(t, c.RegisterConstructor(newRepository))

	inst, err := c.Resolve("*di.repository")
	require.NoError(t, err)
	repo := inst.(*repository)
	require.Equal(t, "sqlite", repo.Conn.Dialect.Name)
}

func TestResolveCachesSingleton(t *testing.T) {
	c := New()
	calls := 0
	require.NoError(t, c.RegisterFactory("di.conn", func() *connection {
		calls++
		return &connection{}
	}))

	first, err := c.Resolve("di.conn")
	require.NoError(t, err)
	second, err := c.Resolve("di.conn")
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, calls)
}

func TestResolveUnknownService(t *testing.T) {
	c := New()
	_, err := c.Resolve("missing")
	require.Error(t, err)
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("svc", &dialect{}))
	require.Error(t, c.RegisterInstance("svc", &dialect{}))
	require.Error(t, c.RegisterFactory("svc", func() *dialect { return nil }))
}

func TestResolveAllReportsMissingDependency(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterConstructor(newRepository))

	err := c.ResolveAll()
	require.Error(t, err)
	require.Contains(t, err.Error(), "*di.repository")
}

type serviceA struct{ B *serviceB }

type serviceB struct{ A *serviceA }

func TestResolveAllReportsCircularDependency(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterFactory("*di.serviceA", func(b *serviceB) *serviceA { return &serviceA{B: b} }))
	require.NoError(t, c.RegisterFactory("*di.serviceB", func(a *serviceA) *serviceB { return &serviceB{A: a} }))

	err := c.ResolveAll()
	require.Error(t, err)
	require.Contains(t, err.Error(), "circular")
}

func TestResolveAllTopologicalOrder(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("di.dialect", &dialect{Name: "sqlite"}))
	require.NoError(t, c.RegisterConstructor(newConnection))
	require.NoError(t, c.RegisterConstructor(newRepository))
	require.NoError(t, c.ResolveAll())

	inst, err := c.Resolve("*di.connection")
	require.NoError(t, err)
	require.Equal(t, "sqlite", inst.(*connection).Dialect.Name)
}

func TestFactoryErrorPropagates(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterFactory("di.conn", func() (*connection, error) {
		return nil, errTest
	}))
	_, err := c.Resolve("di.conn")
	require.ErrorIs(t, err, errTest)
}

func TestResolveTo(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("di.dialect", &dialect{Name: "sqlite"}))

	var d *dialect
	require.NoError(t, c.ResolveTo("di.dialect", &d))
	require.Equal(t, "sqlite", d.Name)

	var conn *connection
	require.Error(t, c.ResolveTo("di.dialect", &conn))
	require.Error(t, c.ResolveTo("missing", &d))
}

func TestInvokeInjectsParameters(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("*di.dialect", &dialect{Name: "sqlite"}))

	var got string
	require.NoError(t, c.Invoke(func(d *dialect) { got = d.Name }))
	require.Equal(t, "sqlite", got)

	require.Error(t, c.Invoke(func(conn *connection) {}))
}

func TestRegisteredNamesSorted(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("b", &dialect{}))
	require.NoError(t, c.RegisterInstance("a", &dialect{}))
	require.NoError(t, c.RegisterFactory("c", func() *dialect { return nil }))
	require.Equal(t, []string{"a", "b", "c"}, c.RegisteredNames())
}
