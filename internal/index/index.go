package index

// OutputIndex defines the ledger operations the executor depends on.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type OutputIndex interface {
	Lookup(destination string) (*OutputRow, error)
	Record(row OutputRow) error
	BySource(source string) ([]OutputRow, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies OutputIndex at compile time.
var _ OutputIndex = (*DB)(nil)
