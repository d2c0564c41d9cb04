package novagrid

// Tx is a transaction handle. The cluster protocol reserves a slot for it
// in every data operation, but transactions are not implemented yet: any
// operation given a non-nil handle fails with ErrTransactionsUnsupported
// before anything is sent.
type Tx struct {
	id int64
}
