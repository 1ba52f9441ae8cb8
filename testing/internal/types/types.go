package types

// TestingTB is the subset of testing.TB the test fixtures need. Taking the
// interface rather than the concrete type lets the fixtures run under other
// harnesses, such as ginkgo via GinkgoT.
type TestingTB interface {
	Cleanup(func())
	Fail()
	FailNow()
	Failed() bool
	Fatal(args ...interface{})
	Helper()
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Name() string
	Skip(args ...interface{})
}
